package policy

// BuiltinPolicies returns the policies shipped with stratus. They are
// conservative: one warning about untagged resources and one guard
// against destroying a large share of the managed estate at once.
func BuiltinPolicies() []Policy {
	return []Policy{
		requireTagsPolicy(),
		massDeletePolicy(),
	}
}

func requireTagsPolicy() Policy {
	return Policy{
		Name:     "require-tags",
		Source:   "builtin",
		Severity: SeverityWarning,
		Rego: `package stratus.policies.tags

import rego.v1

deny contains violation if {
	some change in input.changes
	change.action in {"CREATE", "UPDATE", "REPLACE"}
	not change.properties.tags
	violation := {
		"message": sprintf("resource %s has no tags", [change.address]),
		"severity": "warning",
		"resource": change.address,
	}
}
`,
	}
}

func massDeletePolicy() Policy {
	return Policy{
		Name:     "mass-delete",
		Source:   "builtin",
		Severity: SeverityError,
		Rego: `package stratus.policies.massdelete

import rego.v1

deny contains violation if {
	deletes := input.summary.delete + input.summary.replace
	deletes >= 10
	violation := {
		"message": sprintf("plan destroys %d resources at once; split the change or target it explicitly", [deletes]),
		"severity": "error",
	}
}
`,
	}
}
