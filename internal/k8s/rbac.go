package k8s

import (
	rbacv1 "k8s.io/api/rbac/v1"
)

// CompileRules converts caller permission requests into RBAC policy rules,
// one rule per request in request order. Requests for the same resource are
// deliberately not merged; consumers of the policy document rely on the
// one-request-to-one-rule mapping.
func CompileRules(permissions []PermissionRequest) []rbacv1.PolicyRule {
	rules := make([]rbacv1.PolicyRule, 0, len(permissions))
	for _, perm := range permissions {
		// An unset apiGroup must compile to [""] (the core group). An empty
		// apiGroups list would match no resources at all.
		apiGroups := []string{""}
		if perm.APIGroup != "" {
			apiGroups = []string{perm.APIGroup}
		}

		rules = append(rules, rbacv1.PolicyRule{
			APIGroups: apiGroups,
			Resources: []string{perm.Resource},
			Verbs:     perm.Verbs,
		})
	}
	return rules
}
