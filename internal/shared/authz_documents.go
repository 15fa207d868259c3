package shared

// Document permissions granted through groups. The values are the keys stored in the
// groups.permissions JSON payload.
const (
	PermDocumentsView     = "view"
	PermDocumentsUpload   = "upload"
	PermDocumentsDownload = "download"
	PermFoldersCreate     = "create_folder"
	PermDocumentsEdit     = "edit"
	PermDocumentsDelete   = "delete"
	PermDocumentsRename   = "rename"
	PermDocumentsMove     = "move"
	PermDocumentsShare    = "share"
)

// DocumentScopes lists every permission a group can grant.
func DocumentScopes() []string {
	return []string{
		PermDocumentsView,
		PermDocumentsUpload,
		PermDocumentsDownload,
		PermFoldersCreate,
		PermDocumentsEdit,
		PermDocumentsDelete,
		PermDocumentsRename,
		PermDocumentsMove,
		PermDocumentsShare,
	}
}

// IsDocumentScope reports whether key belongs to DocumentScopes.
func IsDocumentScope(key string) bool {
	for _, scope := range DocumentScopes() {
		if scope == key {
			return true
		}
	}
	return false
}
