// Package k8s resolves the RCON password from a Kubernetes Secret.
//
// A secret reference is written as "namespace/name[:key]". The namespace may
// be omitted, in which case the pod's own namespace is used when running in a
// cluster, and "default" otherwise. The key defaults to "rcon-password".
//
// Example usage:
//
//	ref, err := k8s.ParseSecretRef("games/minecraft-rcon")
//	if err != nil {
//		return err
//	}
//	clientset, err := k8s.NewClientset(k8s.ClientConfig{InCluster: true})
//	if err != nil {
//		return err
//	}
//	password, err := k8s.PasswordFromSecret(ctx, clientset, ref)
package k8s
