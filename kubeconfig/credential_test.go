package kubeconfig

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const sampleKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://apiserver.cluster.local:6443
    insecure-skip-tls-verify: true
  name: sealos
contexts:
- context:
    cluster: sealos
    namespace: ns-wsa
    user: u1cr
  name: u1cr@sealos
current-context: u1cr@sealos
users:
- name: u1cr
  user:
    token: super-secret-bearer
`

func TestRetargetChangesOnlyNamespace(t *testing.T) {
	in := New([]byte(sampleKubeconfig))

	out, err := Retarget(in, "ns-wsb")
	if err != nil {
		t.Fatalf("retarget: %v", err)
	}

	ns, err := out.Namespace()
	if err != nil {
		t.Fatalf("namespace: %v", err)
	}
	if ns != "ns-wsb" {
		t.Fatalf("expected ns-wsb, got %q", ns)
	}

	orig, err := in.Namespace()
	if err != nil {
		t.Fatalf("namespace: %v", err)
	}
	if orig != "ns-wsa" {
		t.Fatalf("input credential changed: %q", orig)
	}

	cfg, err := out.RESTConfig()
	if err != nil {
		t.Fatalf("rest config: %v", err)
	}
	if cfg.Host != "https://apiserver.cluster.local:6443" || cfg.BearerToken != "super-secret-bearer" {
		t.Fatalf("unexpected rest config host=%q", cfg.Host)
	}
}

func TestRetargetWithoutCurrentContext(t *testing.T) {
	raw := strings.Replace(sampleKubeconfig, "current-context: u1cr@sealos\n", "", 1)
	out, err := Retarget(New([]byte(raw)), "ns-wsc")
	if err != nil {
		t.Fatalf("retarget: %v", err)
	}
	if ns, _ := out.Namespace(); ns != "ns-wsc" {
		t.Fatalf("expected ns-wsc, got %q", ns)
	}
}

func TestRetargetInvalid(t *testing.T) {
	if _, err := Retarget(Credential{}, "ns-wsb"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for empty credential, got %v", err)
	}
	if _, err := Retarget(New([]byte("[unterminated")), "ns-wsb"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, err := Retarget(New([]byte(sampleKubeconfig)), ""); err == nil {
		t.Fatal("expected empty namespace to be rejected")
	}
}

func TestCredentialIsRedacted(t *testing.T) {
	c := New([]byte(sampleKubeconfig))
	for _, s := range []string{c.String(), fmt.Sprintf("%v", c), fmt.Sprintf("%+v", c), fmt.Sprintf("%#v", c)} {
		if strings.Contains(s, "super-secret-bearer") {
			t.Fatalf("credential leaked in %q", s)
		}
	}
}

func TestBytesIsCopy(t *testing.T) {
	c := New([]byte(sampleKubeconfig))
	b := c.Bytes()
	b[0] = 'X'
	if c.Bytes()[0] == 'X' {
		t.Fatal("Bytes must return a copy")
	}
}
