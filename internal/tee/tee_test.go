package tee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
)

func TestDecodeKey(t *testing.T) {
	want := bytes.Repeat([]byte{0xab}, 32)
	got, err := DecodeKey("0x" + strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("DecodeKey err=%v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("key=%x want=%x", got, want)
	}
	if _, err := DecodeKey("abcd"); !errors.Is(err, ErrShortKey) {
		t.Fatalf("err=%v want=%v", err, ErrShortKey)
	}
	if _, err := DecodeKey("zz"); err == nil {
		t.Fatalf("expected hex error")
	}
	if _, err := DecodeKey(""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestMockDeriverDeterministic(t *testing.T) {
	d := New(config.TEEConfig{Mock: true, DevSecret: "dev"})
	a, _ := d.DeriveSigningKey(context.Background(), EVMKeyID("u1"), KindSecp256k1)
	b, _ := d.DeriveSigningKey(context.Background(), EVMKeyID("u1"), KindSecp256k1)
	c, _ := d.DeriveSigningKey(context.Background(), SolanaKeyID("u1"), KindEd25519)
	if !bytes.Equal(a, b) {
		t.Fatalf("same key id should derive the same key")
	}
	if bytes.Equal(a, c) {
		t.Fatalf("different key ids should derive different keys")
	}
	if len(a) != 32 {
		t.Fatalf("len=%d want=32", len(a))
	}
}

func TestROFLClientOverUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "rofl")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "appd.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}

	var gotReq generateRequest
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rofl/v1/keys/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]string{"key": "0x" + strings.Repeat("11", 32)})
	}))
	srv.Listener = ln
	srv.Start()
	defer srv.Close()

	c := NewROFLClient(sock)
	key, err := c.DeriveSigningKey(context.Background(), SolanaKeyID("u9"), KindEd25519)
	if err != nil {
		t.Fatalf("DeriveSigningKey err=%v", err)
	}
	if len(key) != 32 || key[0] != 0x11 {
		t.Fatalf("key=%x", key)
	}
	if gotReq.KeyID != "pawpad:user:u9:sol:v1" || gotReq.Kind != KindEd25519 {
		t.Fatalf("request=%+v", gotReq)
	}
}
