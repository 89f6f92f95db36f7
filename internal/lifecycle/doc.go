// Package lifecycle coordinates application components through startup,
// health monitoring, and shutdown.
//
// Components register with a factory and a list of named dependencies. The
// manager orders the graph topologically, instantiates each component,
// probes every dependency before its dependent starts, and rolls the whole
// startup back if anything fails. While running, a periodic health loop
// restarts unhealthy components from their factories until a per-component
// restart budget is spent; after that the component is marked failed and
// left down. Shutdown stops components in reverse start order under
// per-component and overall deadlines, and is safe to call more than once.
package lifecycle
