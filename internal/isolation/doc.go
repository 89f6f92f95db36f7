// Package isolation gives each executing task a private context: its own
// copy of the task data and its own lock, created before the handler runs
// and unconditionally torn down afterwards. Tasks never see each other's
// contexts.
package isolation
