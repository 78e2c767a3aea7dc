package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	cookies := []*proto.NetworkCookieParam{
		{Name: "sessionid", Value: "abc123", Domain: ".instagram.com"},
		{Name: "csrftoken", Value: "tok", Domain: ".instagram.com"},
	}
	store.Save("alice", cookies)

	got := store.Load("alice")
	if len(got) != 2 {
		t.Fatalf("ожидали 2 cookie, получили %d", len(got))
	}
	if got[0].Name != "sessionid" || got[0].Value != "abc123" {
		t.Fatalf("cookie прочитаны неверно: %+v", got[0])
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	store := NewStore(t.TempDir())
	if got := store.Load("nobody"); got != nil {
		t.Fatalf("для несохранённого аккаунта ожидали nil, получили %v", got)
	}
}

func TestLoadAcceptsBareArray(t *testing.T) {
	// Старые версии писали массив cookie без обёртки.
	store := NewStore(t.TempDir())
	dir := store.ProfilePath("legacy")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	bare := []*proto.NetworkCookieParam{{Name: "sessionid", Value: "old"}}
	raw, _ := json.Marshal(bare)
	if err := os.WriteFile(filepath.Join(dir, "session.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	got := store.Load("legacy")
	if len(got) != 1 || got[0].Value != "old" {
		t.Fatalf("голый массив должен читаться, получили %v", got)
	}
}

func TestLoadCorruptReturnsNil(t *testing.T) {
	store := NewStore(t.TempDir())
	dir := store.ProfilePath("broken")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := store.Load("broken"); got != nil {
		t.Fatalf("битый файл должен давать nil, получили %v", got)
	}
}
