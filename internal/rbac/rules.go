package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	"teacher": {
		"quiz:create",
		"quiz:view",
		"quiz:update",
		"quiz:delete",
		"attempt:view-all",
		"attempt:grade",
		"attempt:reissue",
		"users:bulk_upsert",
		"users:list",
		"groups:manage",
	},
	"admin": {
		"*", // everything
	},
}
