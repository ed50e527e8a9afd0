package k8s

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	// ErrInvalidSecretRef is returned by ParseSecretRef for malformed references.
	ErrInvalidSecretRef = errors.New("invalid secret reference")

	// ErrSecretNotFound is returned when the referenced Secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretKeyMissing is returned when the Secret exists but lacks the key.
	ErrSecretKeyMissing = errors.New("secret key missing")
)

// SecretRef points at one key of a Secret.
type SecretRef struct {
	Namespace string
	Name      string
	Key       string
}

// String returns the reference in "namespace/name:key" form.
func (r SecretRef) String() string {
	return fmt.Sprintf("%s/%s:%s", r.Namespace, r.Name, r.Key)
}

// ParseSecretRef parses "namespace/name[:key]" or "name[:key]". A missing
// namespace is filled in from the service account namespace file, or
// DefaultNamespace when that file is absent.
func ParseSecretRef(s string) (SecretRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SecretRef{}, fmt.Errorf("%w: empty", ErrInvalidSecretRef)
	}

	ref := SecretRef{Key: DefaultSecretKey}
	if name, key, ok := strings.Cut(s, ":"); ok {
		if key == "" {
			return SecretRef{}, fmt.Errorf("%w: empty key in %q", ErrInvalidSecretRef, s)
		}
		s, ref.Key = name, key
	}

	if ns, name, ok := strings.Cut(s, "/"); ok {
		ref.Namespace, ref.Name = ns, name
	} else {
		ref.Namespace, ref.Name = currentNamespace(), s
	}

	if errs := validation.IsDNS1123Label(ref.Namespace); len(errs) > 0 {
		return SecretRef{}, fmt.Errorf("%w: namespace %q: %s", ErrInvalidSecretRef, ref.Namespace, strings.Join(errs, "; "))
	}
	if errs := validation.IsDNS1123Subdomain(ref.Name); len(errs) > 0 {
		return SecretRef{}, fmt.Errorf("%w: name %q: %s", ErrInvalidSecretRef, ref.Name, strings.Join(errs, "; "))
	}
	if errs := validation.IsConfigMapKey(ref.Key); len(errs) > 0 {
		return SecretRef{}, fmt.Errorf("%w: key %q: %s", ErrInvalidSecretRef, ref.Key, strings.Join(errs, "; "))
	}
	return ref, nil
}

func currentNamespace() string {
	data, err := os.ReadFile(DefaultNamespacePath)
	if err != nil {
		return DefaultNamespace
	}
	if ns := strings.TrimSpace(string(data)); ns != "" {
		return ns
	}
	return DefaultNamespace
}

// ClientConfig selects how NewClientset authenticates.
type ClientConfig struct {
	// InCluster uses the pod's service account.
	InCluster bool
	// KubeconfigPath overrides the default loading rules outside a cluster.
	KubeconfigPath string
	// Context selects a kubeconfig context. Empty means the current context.
	Context string
	Logger  *slog.Logger
}

// NewClientset builds a clientset from cfg.
func NewClientset(cfg ClientConfig) (kubernetes.Interface, error) {
	restConfig, err := restConfigFor(cfg)
	if err != nil {
		return nil, err
	}

	restConfig.QPS = DefaultQPSLimit
	restConfig.Burst = DefaultBurstLimit
	restConfig.Timeout = DefaultTimeout * time.Second

	if cfg.Logger != nil {
		cfg.Logger.Debug("kubernetes client configured", "in_cluster", cfg.InCluster, "host", restConfig.Host)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return clientset, nil
}

func restConfigFor(cfg ClientConfig) (*rest.Config, error) {
	if cfg.InCluster {
		restConfig, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster rest config: %w", err)
		}
		return restConfig, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path := cfg.KubeconfigPath; path != "" {
		if strings.HasPrefix(path, "~/") {
			home, _ := os.UserHomeDir()
			path = filepath.Join(home, path[2:])
		}
		loadingRules.ExplicitPath = path
	}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules,
		&clientcmd.ConfigOverrides{CurrentContext: cfg.Context},
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create rest config for context %q: %w", cfg.Context, err)
	}
	return restConfig, nil
}

// PasswordFromSecret reads ref from the cluster. Surrounding whitespace,
// including a trailing newline from `kubectl create secret --from-file`, is
// trimmed.
func PasswordFromSecret(ctx context.Context, client kubernetes.Interface, ref SecretRef) (string, error) {
	secret, err := client.CoreV1().Secrets(ref.Namespace).Get(ctx, ref.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrSecretNotFound, ref.Namespace, ref.Name)
		}
		return "", fmt.Errorf("failed to get secret %s/%s: %w", ref.Namespace, ref.Name, err)
	}

	value, ok := secret.Data[ref.Key]
	if !ok {
		str, ok := secret.StringData[ref.Key]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrSecretKeyMissing, ref)
		}
		value = []byte(str)
	}

	password := strings.TrimSpace(string(value))
	if password == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrSecretKeyMissing, ref)
	}
	return password, nil
}
