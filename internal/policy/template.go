package policy

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# chaingate policy configuration
# Generated by: chaingate init-policy
#
# Evaluation order (cannot be changed):
#   1. Role check of every work item against its direction
#   2. Class admission of every class in a received object graph
#   3. Path sandbox for every file operation from the agent side
#
# The built-in class deny set always applies and cannot be relaxed here.

# Kill-switches. Setting a mechanism to false records would-be denials
# as bypasses and lets the operation proceed. Use only to recover from
# a false positive; every bypass is logged and audited.
# Environment overrides: CHAINGATE_DISABLE_ROLES, CHAINGATE_DISABLE_CLASSES,
# CHAINGATE_DISABLE_PATHS.
enforcement:
  roles: true
  classes: true
  paths: true

# Class rules layered over the built-in deny set.
#   pkg.Class   exact
#   pkg. pkg.*  prefix
#   !rule       re-admit inside a denied prefix
# Most specific rule wins; on a tie deny wins.
classes:
  deny: []
  allow: []

# Same rules as one string, e.g. "acme.,!acme.safe.Result".
# CHAINGATE_CLASS_OVERRIDES is appended at load.
class_overrides: ""

# Work item types allowed on the controller under the granted role.
grants: []

# Static roots the agent side may operate on, besides the build dirs,
# workspaces, user content and temp dirs of each request.
#   ops: read write create delete list stat extract mkdirs symlink, or all
roots: []
#  - path: /srv/ci/shared-cache
#    kind: static
#    ops: [read, list, stat]

# Rejection detail returned to the remote side.
redact:
  include_detail: false
  safe_paths: []
  literals: []
  extra_patterns: []

# Hash-chained denial audit log. Empty disables it.
audit:
  path: ""

# Webhook alerts. events: deny, bypass, killswitch, restore
alerts: []
`
}
