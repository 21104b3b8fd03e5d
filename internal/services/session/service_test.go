package session

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"xcam-worker-go/internal/config"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	root := t.TempDir()
	framesDir := filepath.Join(root, "frames")
	backupsDir := filepath.Join(root, "backups")
	for _, d := range []string{framesDir, backupsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(&config.Config{BackupKeep: 100, BackupPruneEvery: 50}, framesDir, backupsDir)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestAppendAssignsSequentialIndices(t *testing.T) {
	s := newTestService(t)
	for i := 1; i <= 3; i++ {
		winner := filepath.Join(s.framesDir, "temp_000.jpg")
		writeFile(t, winner, fmt.Sprintf("capture-%d", i))

		index, err := s.Append(winner)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if index != i {
			t.Errorf("frame index = %d, want %d", index, i)
		}
	}

	frames, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Fatalf("session frames = %d, want 3", len(frames))
	}
	if got := readFile(t, filepath.Join(s.framesDir, "frame_000002.jpg")); got != "capture-2" {
		t.Errorf("frame 2 content = %q", got)
	}

	// Backups mirror appends under their own numbering.
	backups, _ := filepath.Glob(filepath.Join(s.backupsDir, "backup_*.jpg"))
	if len(backups) != 3 {
		t.Errorf("backups = %d, want 3", len(backups))
	}

	// Burst temps are removed by Append.
	if temps, _ := filepath.Glob(filepath.Join(s.framesDir, "temp_*.jpg")); len(temps) != 0 {
		t.Errorf("temp candidates remain: %v", temps)
	}
}

func TestBackupNumberingIndependentOfSession(t *testing.T) {
	s := newTestService(t)
	writeFile(t, filepath.Join(s.backupsDir, "backup_000007.jpg"), "old")

	winner := filepath.Join(s.framesDir, "temp_000.jpg")
	writeFile(t, winner, "new")
	if _, err := s.Append(winner); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(s.backupsDir, "backup_000008.jpg")); err != nil {
		t.Errorf("backup numbering should continue from existing: %v", err)
	}
}

func TestResetRemovesFramesOnly(t *testing.T) {
	s := newTestService(t)
	writeFile(t, filepath.Join(s.framesDir, "frame_000001.jpg"), "f1")
	writeFile(t, filepath.Join(s.framesDir, "frame_000002.jpg"), "f2")
	writeFile(t, filepath.Join(s.backupsDir, "backup_000001.jpg"), "b1")

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	frames, _ := s.List()
	if len(frames) != 0 {
		t.Errorf("frames remain after reset: %v", frames)
	}
	if _, err := os.Stat(filepath.Join(s.backupsDir, "backup_000001.jpg")); err != nil {
		t.Errorf("reset must not touch backups: %v", err)
	}
}

func TestPruneBackupsKeepsMostRecent(t *testing.T) {
	s := newTestService(t)
	for i := 1; i <= 150; i++ {
		writeFile(t, filepath.Join(s.backupsDir, fmt.Sprintf("backup_%06d.jpg", i)), "b")
	}

	if err := s.PruneBackups(100); err != nil {
		t.Fatalf("PruneBackups: %v", err)
	}

	backups, _ := filepath.Glob(filepath.Join(s.backupsDir, "backup_*.jpg"))
	if len(backups) != 100 {
		t.Fatalf("backups after prune = %d, want 100", len(backups))
	}
	// The 50 oldest-named are gone, the 100 most recent remain.
	if _, err := os.Stat(filepath.Join(s.backupsDir, "backup_000050.jpg")); !os.IsNotExist(err) {
		t.Error("backup_000050.jpg should have been pruned")
	}
	if _, err := os.Stat(filepath.Join(s.backupsDir, "backup_000051.jpg")); err != nil {
		t.Errorf("backup_000051.jpg should remain: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.backupsDir, "backup_000150.jpg")); err != nil {
		t.Errorf("backup_000150.jpg should remain: %v", err)
	}
}

func TestRenumberRepairsGaps(t *testing.T) {
	s := newTestService(t)
	writeFile(t, filepath.Join(s.framesDir, "frame_000001.jpg"), "one")
	writeFile(t, filepath.Join(s.framesDir, "frame_000003.jpg"), "three")
	writeFile(t, filepath.Join(s.framesDir, "frame_000004.jpg"), "four")

	n, err := s.Renumber()
	if err != nil {
		t.Fatalf("Renumber: %v", err)
	}
	if n != 3 {
		t.Errorf("renumbered count = %d, want 3", n)
	}

	frames, _ := s.List()
	if len(frames) != 3 {
		t.Fatalf("frames after renumber = %v", frames)
	}
	wantContent := map[string]string{
		"frame_000001.jpg": "one",
		"frame_000002.jpg": "three",
		"frame_000003.jpg": "four",
	}
	for name, want := range wantContent {
		if got := readFile(t, filepath.Join(s.framesDir, name)); got != want {
			t.Errorf("%s content = %q, want %q", name, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(s.framesDir, "frame_000004.jpg")); !os.IsNotExist(err) {
		t.Error("frame_000004.jpg should no longer exist")
	}
	if _, err := os.Stat(filepath.Join(s.framesDir, renumberDir)); !os.IsNotExist(err) {
		t.Error("renumber scratch dir should be removed")
	}
}

func TestRenumberKeepsScratchWhenOriginalDeleteFails(t *testing.T) {
	s := newTestService(t)
	writeFile(t, filepath.Join(s.framesDir, "frame_000001.jpg"), "one")
	writeFile(t, filepath.Join(s.framesDir, "frame_000003.jpg"), "three")

	// First original deletes fine, the second refuses to go. At that point
	// frame one exists only inside the scratch directory.
	s.remove = func(path string) error {
		if filepath.Base(path) == "frame_000003.jpg" {
			return fmt.Errorf("remove %s: operation not permitted", path)
		}
		return os.Remove(path)
	}

	if _, err := s.Renumber(); err == nil {
		t.Fatal("Renumber should fail when an original cannot be removed")
	}

	scratch := filepath.Join(s.framesDir, renumberDir)
	if got := readFile(t, filepath.Join(scratch, "frame_000001.jpg")); got != "one" {
		t.Errorf("scratch copy of frame one = %q, want %q", got, "one")
	}
	if got := readFile(t, filepath.Join(scratch, "frame_000002.jpg")); got != "three" {
		t.Errorf("scratch copy of frame three = %q, want %q", got, "three")
	}
}

func TestRenumberCopyFailureLeavesOriginalsIntact(t *testing.T) {
	s := newTestService(t)
	writeFile(t, filepath.Join(s.framesDir, "frame_000001.jpg"), "one")
	// A directory matching the frame glob cannot be copied as a file.
	if err := os.MkdirAll(filepath.Join(s.framesDir, "frame_000002.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Renumber(); err == nil {
		t.Fatal("Renumber should fail when a frame cannot be copied")
	}

	if got := readFile(t, filepath.Join(s.framesDir, "frame_000001.jpg")); got != "one" {
		t.Errorf("original frame content = %q, want %q", got, "one")
	}
	if _, err := os.Stat(filepath.Join(s.framesDir, renumberDir)); !os.IsNotExist(err) {
		t.Error("partial scratch dir should be removed when originals are untouched")
	}
}

func TestRenumberIdempotentOnContiguousSequence(t *testing.T) {
	s := newTestService(t)
	for i := 1; i <= 4; i++ {
		writeFile(t, filepath.Join(s.framesDir, fmt.Sprintf("frame_%06d.jpg", i)), fmt.Sprintf("c%d", i))
	}

	for pass := 0; pass < 2; pass++ {
		if _, err := s.Renumber(); err != nil {
			t.Fatalf("Renumber pass %d: %v", pass+1, err)
		}
	}

	frames, _ := s.List()
	if len(frames) != 4 {
		t.Fatalf("frames = %v, want 4 entries", frames)
	}
	for i := 1; i <= 4; i++ {
		name := fmt.Sprintf("frame_%06d.jpg", i)
		if got := readFile(t, filepath.Join(s.framesDir, name)); got != fmt.Sprintf("c%d", i) {
			t.Errorf("%s content = %q after double renumber", name, got)
		}
	}
}

func TestRenumberFailsWithoutFrames(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Renumber(); err != ErrNoFrames {
		t.Errorf("Renumber on empty session = %v, want ErrNoFrames", err)
	}
}

func TestAppendTriggersPeriodicPrune(t *testing.T) {
	root := t.TempDir()
	framesDir := filepath.Join(root, "frames")
	backupsDir := filepath.Join(root, "backups")
	for _, d := range []string{framesDir, backupsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	s := NewService(&config.Config{BackupKeep: 2, BackupPruneEvery: 3}, framesDir, backupsDir)

	for i := 0; i < 3; i++ {
		winner := filepath.Join(framesDir, "temp_000.jpg")
		writeFile(t, winner, "x")
		if _, err := s.Append(winner); err != nil {
			t.Fatal(err)
		}
	}

	backups, _ := filepath.Glob(filepath.Join(backupsDir, "backup_*.jpg"))
	if len(backups) != 2 {
		t.Errorf("backups after periodic prune = %d, want 2", len(backups))
	}
}
