package k8s

const (
	// Service account paths - default Kubernetes in-cluster locations
	DefaultServiceAccountPath = "/var/run/secrets/kubernetes.io/serviceaccount"
	DefaultNamespacePath      = DefaultServiceAccountPath + "/namespace"

	// Default client settings. Secret reads are rare, so the limits are low.
	DefaultQPSLimit   = 5.0
	DefaultBurstLimit = 10
	DefaultTimeout    = 15 // seconds

	// DefaultSecretKey is the data key read when a SecretRef names none.
	DefaultSecretKey = "rcon-password"

	// DefaultNamespace is used outside a cluster when a reference has no namespace.
	DefaultNamespace = "default"
)
