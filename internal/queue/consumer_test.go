package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "strings"
    "testing"
)

func TestAppendVisitWritesOneLinePerEvent(t *testing.T) {
    dir := filepath.Join(t.TempDir(), "logs")
    for _, id := range []uint64{1, 2} {
        body, _ := json.Marshal(VisitRecordedEvent{
            VisitID: id, OrganisationID: 3, VisitorID: 42, VisitorName: "Sam",
            ActivityID: 2, ActivityName: "Art", RecordedBy: 7, Role: "KIOSK",
            RecordedAt: "2024-01-01T10:00:00Z",
        })
        if err := AppendVisit(dir, body); err != nil {
            t.Fatalf("AppendVisit() error = %v", err)
        }
    }
    data, err := os.ReadFile(filepath.Join(dir, VisitLogFile))
    if err != nil {
        t.Fatalf("read log: %v", err)
    }
    lines := strings.Split(strings.TrimSpace(string(data)), "\n")
    if len(lines) != 2 {
        t.Fatalf("lines = %d, want 2:\n%s", len(lines), data)
    }
    for _, want := range []string{"visit_id=1", `visitor="Sam"`, `activity="Art"`, "by=7 (KIOSK)", "[2024-01-01T10:00:00Z]"} {
        if !strings.Contains(lines[0], want) {
            t.Errorf("line %q missing %q", lines[0], want)
        }
    }
}

func TestAppendVisitRejectsBadMessages(t *testing.T) {
    dir := t.TempDir()
    if err := AppendVisit(dir, []byte("not json")); err == nil {
        t.Fatal("AppendVisit(garbage) error = nil")
    }
    if err := AppendVisit(dir, []byte(`{"visitor_id":1}`)); err == nil {
        t.Fatal("AppendVisit(no visit id) error = nil")
    }
    if _, err := os.Stat(filepath.Join(dir, VisitLogFile)); !os.IsNotExist(err) {
        t.Fatalf("log file written for rejected messages: %v", err)
    }
}
