package model

// Permission represents a string code for a specific staff action.
type Permission string

const (
	// PermissionTestsRead allows viewing tests and their submissions.
	PermissionTestsRead Permission = "tests:read"

	// PermissionTestsWrite allows creating tests and uploading test papers.
	PermissionTestsWrite Permission = "tests:write"

	// PermissionSubmissionsGrade allows grading submissions.
	PermissionSubmissionsGrade Permission = "submissions:grade"

	// PermissionProctoringReset allows clearing a student's compromise flag.
	PermissionProctoringReset Permission = "proctoring:reset"

	// PermissionProctoringMonitor allows watching the live proctoring stream.
	PermissionProctoringMonitor Permission = "proctoring:monitor"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionTestsRead,
	PermissionTestsWrite,
	PermissionSubmissionsGrade,
	PermissionProctoringReset,
	PermissionProctoringMonitor,
}
