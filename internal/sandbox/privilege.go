package sandbox

import "github.com/phrazzld/enrich-core/internal/task"

// Level is a privilege tier assigned to a task before it runs. The tier is
// derived from the task type alone, never from the payload, so untrusted
// payload content cannot escalate its own privileges.
type Level string

const (
	// LevelMinimal is for pure-analysis tasks that only read data the
	// system already holds.
	LevelMinimal Level = "minimal"

	// LevelRestricted is for tasks that ingest external content and
	// therefore process untrusted input.
	LevelRestricted Level = "restricted"

	// LevelStandard is the default tier for task types the sandbox does
	// not recognize.
	LevelStandard Level = "standard"
)

// Limits are the process resource ceilings associated with a privilege
// level. A zero field means the corresponding limit is not applied.
type Limits struct {
	// AddressSpaceBytes caps virtual memory (RLIMIT_AS).
	AddressSpaceBytes uint64

	// CPUTimeSeconds caps consumed CPU time (RLIMIT_CPU).
	CPUTimeSeconds uint64

	// FileSizeBytes caps the size of any file the task writes
	// (RLIMIT_FSIZE).
	FileSizeBytes uint64
}

// LevelForTask maps a task type to its privilege level. Analysis tasks that
// never leave the local dataset run minimal; tasks that pull in external
// content run restricted; anything unrecognized gets the standard tier.
func LevelForTask(taskType string) Level {
	switch taskType {
	case task.TaskTypeGapAnalysis, task.TaskTypeTagGeneration, task.TaskTypeRelationshipMapping:
		return LevelMinimal
	case task.TaskTypeContentScrape:
		return LevelRestricted
	default:
		return LevelStandard
	}
}

// LimitsForLevel returns the resource ceilings for a privilege level.
func LimitsForLevel(level Level) Limits {
	switch level {
	case LevelMinimal:
		return Limits{
			AddressSpaceBytes: 1 << 30, // 1 GiB
			CPUTimeSeconds:    60,
			FileSizeBytes:     16 << 20, // 16 MiB
		}
	case LevelRestricted:
		return Limits{
			AddressSpaceBytes: 2 << 30, // 2 GiB
			CPUTimeSeconds:    120,
			FileSizeBytes:     64 << 20, // 64 MiB
		}
	default:
		return Limits{
			AddressSpaceBytes: 4 << 30, // 4 GiB
			CPUTimeSeconds:    300,
			FileSizeBytes:     256 << 20, // 256 MiB
		}
	}
}
