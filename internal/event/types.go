package event

// FileEditedData is the data for file.edited events.
type FileEditedData struct {
	File string `json:"file"`
}

// VcsBranchUpdatedData is the data for vcs.branch.updated events.
type VcsBranchUpdatedData struct {
	Branch string `json:"branch"`
}

// PermissionRequiredData is the data for permission.required events,
// published while Checker.Ask blocks waiting for a Respond call.
type PermissionRequiredData struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"sessionID"`
	PermissionType string   `json:"permissionType"` // "bash" | "edit" | "external_directory"
	Pattern        []string `json:"pattern"`
	Title          string   `json:"title"`
}

// PermissionResolvedData is the data for permission.resolved events.
type PermissionResolvedData struct {
	ID      string `json:"id"`
	Granted bool   `json:"granted"`
}
