package persist_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/raysh454/coinpilot/internal/persist"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type txRecord struct {
	TransactionHash string `json:"transaction_hash,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "transaction.json")

	in := txRecord{TransactionHash: "5xH9k&<tx>"}
	if err := persist.Save(in, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var out txRecord
	if err := persist.Load(path, &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_OverwritesAndIndents(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "output.json")

	if err := persist.Save(map[string]string{"transaction_hash": "first-and-much-longer"}, path); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := persist.Save(map[string]string{"transaction_hash": "second"}, path); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "{\n    \"transaction_hash\": \"second\"\n}\n"
	if string(data) != want {
		t.Errorf("unexpected file contents %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	var v map[string]any
	err := persist.Load(filepath.Join(t.TempDir(), "nope.json"), &v)
	if err == nil || !os.IsNotExist(unwrapAll(err)) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func unwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}

func TestErrorLog_AppendsTimestampedLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "error.log")
	clock := time.Date(2024, 11, 5, 9, 3, 7, 0, time.UTC)
	log := persist.NewErrorLog(path).WithClock(func() time.Time { return clock })

	if err := log.Append("launch failed: element not found"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	clock = clock.Add(time.Minute)
	if err := log.Append("second\nline"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	want := []string{
		"[2024-11-05 09:03:07] launch failed: element not found",
		"[2024-11-05 09:04:07] second line",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("error log mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffJSON_ReportsChangedMembers(t *testing.T) {
	t.Parallel()
	base := []byte(`{"stats":{"holders":10,"price":1.5},"promotion_response":null}`)
	head := []byte(`{"stats": {"holders": 12, "price": 1.5}, "promotion_response": null}`)

	chunks := persist.DiffJSON(base, head)
	if len(chunks) != 2 {
		t.Fatalf("expected one removed and one added chunk, got %+v", chunks)
	}
	if chunks[0].Type != "removed" || !strings.Contains(chunks[0].Content, "10") {
		t.Errorf("unexpected removed chunk %+v", chunks[0])
	}
	if chunks[1].Type != "added" || !strings.Contains(chunks[1].Content, "12") {
		t.Errorf("unexpected added chunk %+v", chunks[1])
	}

	if got := persist.DiffJSON(base, base); len(got) != 0 {
		t.Errorf("expected no chunks for identical documents, got %+v", got)
	}
}
