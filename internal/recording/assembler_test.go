package recording

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/dkeye/vlink/internal/domain"
	"github.com/dkeye/vlink/internal/events"
	"github.com/dkeye/vlink/internal/events/eventstest"
	"github.com/dkeye/vlink/internal/media"
	"github.com/dkeye/vlink/internal/probe"
	"github.com/dkeye/vlink/internal/store"
	"github.com/dkeye/vlink/internal/store/sqlstore"
)

type memSource struct {
	mu         sync.Mutex
	chunks     []*domain.MediaChunk
	recordings []*domain.RecordingArtifact
}

func (m *memSource) ListChunks(_ context.Context, f store.ChunkFilter) ([]*domain.MediaChunk, error) {
	var out []*domain.MediaChunk
	for _, c := range m.chunks {
		if c.SessionID == f.SessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memSource) CreateRecording(_ context.Context, r *domain.RecordingArtifact) error {
	m.mu.Lock()
	m.recordings = append(m.recordings, r)
	m.mu.Unlock()
	return nil
}

// encoderCall captures one encoder invocation and the manifests as they
// were on disk at that moment.
type encoderCall struct {
	args      []string
	manifests map[string]string
}

type fakeEncoder struct {
	fs    afero.Fs
	fail  error
	calls []encoderCall
}

func (e *fakeEncoder) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	call := encoderCall{args: args, manifests: map[string]string{}}
	for i, a := range args {
		if a == "-i" {
			data, _ := afero.ReadFile(e.fs, args[i+1])
			call.manifests[args[i+1]] = string(data)
		}
	}
	e.calls = append(e.calls, call)
	output := args[len(args)-1]
	if e.fail != nil {
		// partial output left behind by a crashed encoder
		_ = afero.WriteFile(e.fs, output, []byte("partial"), 0o644)
		return nil, e.fail
	}
	return nil, afero.WriteFile(e.fs, output, []byte("mp4-bytes"), 0o644)
}

type memQueue struct{ refs []probe.Ref }

func (q *memQueue) Enqueue(_ string, ref probe.Ref) error {
	q.refs = append(q.refs, ref)
	return nil
}

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

func addChunk(t *testing.T, fs afero.Fs, src *memSource, kind domain.MediaKind, seq int64) {
	t.Helper()
	path := fmt.Sprintf("/data/%s/s1/%s_s1_%d.webm", kind, kind, seq)
	if err := afero.WriteFile(fs, path, []byte{byte(seq)}, 0o644); err != nil {
		t.Fatal(err)
	}
	src.chunks = append(src.chunks, &domain.MediaChunk{
		ID: fmt.Sprintf("ch-%s-%d", kind, seq), SessionID: "s1", Kind: kind, Seq: seq, Path: path,
	})
}

func tempFiles(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, "/rec/temp")
	if err != nil {
		return nil
	}
	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names
}

func TestAssemble_AudioAndVideo(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &memSource{}
	for seq := int64(0); seq < 3; seq++ {
		addChunk(t, fs, src, domain.MediaAudio, seq)
	}
	for seq := int64(0); seq < 2; seq++ {
		addChunk(t, fs, src, domain.MediaVideo, seq)
	}
	enc := &fakeEncoder{fs: fs}
	q := &memQueue{}
	pub := &eventstest.Recorder{}
	a := NewAssembler(src, fs, enc, Config{Dir: "/rec"}, WithProbe(q), WithPublisher(pub), WithClock(fixedNow))

	rec, err := a.Assemble(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(src.recordings) != 1 {
		t.Fatalf("recordings = %d, want 1", len(src.recordings))
	}
	if rec.Filename != "recording_s1_1700000000.mp4" || rec.Path != "/rec/recording_s1_1700000000.mp4" {
		t.Errorf("artifact name/path = %s %s", rec.Filename, rec.Path)
	}
	if rec.MediaType != "video/mp4" || !rec.OfflineReady || rec.Size != int64(len("mp4-bytes")) {
		t.Errorf("artifact = %+v", rec)
	}

	if len(enc.calls) != 1 {
		t.Fatalf("encoder calls = %d", len(enc.calls))
	}
	want := []string{
		"-y",
		"-f", "concat", "-safe", "0", "-i", "/rec/temp/s1_vid.txt",
		"-f", "concat", "-safe", "0", "-i", "/rec/temp/s1_aud.txt",
		"-map", "0:v", "-map", "1:a", "-c:v", "copy", "-c:a", "aac", "-shortest",
		"/rec/recording_s1_1700000000.mp4",
	}
	if got := strings.Join(enc.calls[0].args, " "); got != strings.Join(want, " ") {
		t.Errorf("args:\n got %s\nwant %s", got, strings.Join(want, " "))
	}

	aud := enc.calls[0].manifests["/rec/temp/s1_aud.txt"]
	wantAud := "file '/data/audio/s1/audio_s1_0.webm'\n" +
		"file '/data/audio/s1/audio_s1_1.webm'\n" +
		"file '/data/audio/s1/audio_s1_2.webm'\n"
	if aud != wantAud {
		t.Errorf("audio manifest:\n%s", aud)
	}
	if vid := enc.calls[0].manifests["/rec/temp/s1_vid.txt"]; strings.Count(vid, "\n") != 2 {
		t.Errorf("video manifest:\n%s", vid)
	}

	if left := tempFiles(t, fs); len(left) != 0 {
		t.Errorf("manifests left behind: %v", left)
	}
	if len(q.refs) != 1 || q.refs[0].Kind != probe.RefRecording || q.refs[0].ID != rec.ID {
		t.Errorf("probe refs = %+v", q.refs)
	}
	if got := pub.Events(events.TopicRecordingCreated); len(got) != 1 {
		t.Errorf("published %d recording events", len(got))
	}
}

func TestAssemble_AudioOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &memSource{}
	addChunk(t, fs, src, domain.MediaAudio, 0)
	enc := &fakeEncoder{fs: fs}
	a := NewAssembler(src, fs, enc, Config{Dir: "/rec"}, WithClock(fixedNow))

	if _, err := a.Assemble(context.Background(), "s1"); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := strings.Join(enc.calls[0].args, " ")
	want := "-y -f concat -safe 0 -i /rec/temp/s1_aud.txt -c:a aac /rec/recording_s1_1700000000.mp4"
	if got != want {
		t.Errorf("args:\n got %s\nwant %s", got, want)
	}
}

func TestAssemble_VideoOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &memSource{}
	addChunk(t, fs, src, domain.MediaVideo, 0)
	enc := &fakeEncoder{fs: fs}
	a := NewAssembler(src, fs, enc, Config{Dir: "/rec"}, WithClock(fixedNow))

	if _, err := a.Assemble(context.Background(), "s1"); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := strings.Join(enc.calls[0].args, " ")
	want := "-y -f concat -safe 0 -i /rec/temp/s1_vid.txt -c:v copy /rec/recording_s1_1700000000.mp4"
	if got != want {
		t.Errorf("args:\n got %s\nwant %s", got, want)
	}
}

func TestAssemble_EncoderFailureLeavesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &memSource{}
	addChunk(t, fs, src, domain.MediaAudio, 0)
	addChunk(t, fs, src, domain.MediaVideo, 0)
	enc := &fakeEncoder{fs: fs, fail: errors.New("exit status 1")}
	pub := &eventstest.Recorder{}
	a := NewAssembler(src, fs, enc, Config{Dir: "/rec"}, WithPublisher(pub), WithClock(fixedNow))

	_, err := a.Assemble(context.Background(), "s1")
	if !errors.Is(err, ErrEncoderFailed) {
		t.Fatalf("got %v, want ErrEncoderFailed", err)
	}
	if len(src.recordings) != 0 {
		t.Error("no artifact expected")
	}
	if left := tempFiles(t, fs); len(left) != 0 {
		t.Errorf("manifests left behind: %v", left)
	}
	if ok, _ := afero.Exists(fs, "/rec/recording_s1_1700000000.mp4"); ok {
		t.Error("partial output left behind")
	}
	if len(pub.Topics()) != 0 {
		t.Error("nothing should be published")
	}
}

func TestAssemble_NoChunksSkipsEncoder(t *testing.T) {
	fs := afero.NewMemMapFs()
	enc := &fakeEncoder{fs: fs}
	a := NewAssembler(&memSource{}, fs, enc, Config{Dir: "/rec"})

	if _, err := a.Assemble(context.Background(), "s1"); !errors.Is(err, ErrNothingToAssemble) {
		t.Fatalf("got %v, want ErrNothingToAssemble", err)
	}
	if len(enc.calls) != 0 {
		t.Error("encoder must not run")
	}
}

func TestAssemble_MissingFilesSkipped(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &memSource{}
	addChunk(t, fs, src, domain.MediaAudio, 0)
	addChunk(t, fs, src, domain.MediaAudio, 1)
	_ = fs.Remove(src.chunks[0].Path)
	enc := &fakeEncoder{fs: fs}
	a := NewAssembler(src, fs, enc, Config{Dir: "/rec"}, WithClock(fixedNow))

	if _, err := a.Assemble(context.Background(), "s1"); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	aud := enc.calls[0].manifests["/rec/temp/s1_aud.txt"]
	if aud != "file '/data/audio/s1/audio_s1_1.webm'\n" {
		t.Errorf("manifest:\n%s", aud)
	}

	// every file gone: nothing to assemble
	_ = fs.Remove(src.chunks[1].Path)
	if _, err := a.Assemble(context.Background(), "s1"); !errors.Is(err, ErrNothingToAssemble) {
		t.Errorf("got %v, want ErrNothingToAssemble", err)
	}
}

func TestAssemble_RejectsConcurrentRunForSameSession(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &memSource{}
	addChunk(t, fs, src, domain.MediaAudio, 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	runner := media.RunnerFunc(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		close(entered)
		<-release
		return nil, afero.WriteFile(fs, args[len(args)-1], []byte("x"), 0o644)
	})
	a := NewAssembler(src, fs, runner, Config{Dir: "/rec"})

	done := make(chan error, 1)
	go func() {
		_, err := a.Assemble(context.Background(), "s1")
		done <- err
	}()
	<-entered

	if _, err := a.Assemble(context.Background(), "s1"); !errors.Is(err, ErrInProgress) {
		t.Errorf("got %v, want ErrInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Assemble: %v", err)
	}
}

func TestAssemble_InvalidSession(t *testing.T) {
	a := NewAssembler(&memSource{}, afero.NewMemMapFs(), &fakeEncoder{}, Config{Dir: "/rec"})
	if _, err := a.Assemble(context.Background(), "../x"); !errors.Is(err, domain.ErrInvalidSessionID) {
		t.Errorf("got %v", err)
	}
}

func TestWriteManifest_QuotesPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := NewAssembler(&memSource{}, fs, &fakeEncoder{fs: fs}, Config{Dir: "/rec"})

	if err := a.writeManifest("/m.txt", []string{"/data/it's.webm"}); err != nil {
		t.Fatalf("writeManifest: %v", err)
	}
	got, _ := afero.ReadFile(fs, "/m.txt")
	if string(got) != `file '/data/it'\''s.webm'`+"\n" {
		t.Errorf("manifest = %q", got)
	}
}

func TestAssemble_ManifestFollowsStoredSequenceOrder(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "vlink.db")
	st, err := sqlstore.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	fs := afero.NewMemMapFs()
	ctx := context.Background()
	for i, seq := range []int64{4, 1, 3, 0, 2, 2} {
		path := fmt.Sprintf("/data/audio/s1/%d_%d.webm", seq, i)
		if err := afero.WriteFile(fs, path, []byte("a"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := st.CreateChunk(ctx, &domain.MediaChunk{
			ID: fmt.Sprintf("ch-%d", i), SessionID: "s1", SenderID: "u", Seq: seq,
			Kind: domain.MediaAudio, Path: path, CreatedAt: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	enc := &fakeEncoder{fs: fs}
	a := NewAssembler(st, fs, enc, Config{Dir: "/rec"})
	if _, err := a.Assemble(ctx, "s1"); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(enc.calls[0].manifests["/rec/temp/s1_aud.txt"]), "\n")
	want := []string{"0_3", "1_1", "2_4", "2_5", "3_2", "4_0"}
	if len(lines) != len(want) {
		t.Fatalf("manifest lines = %d", len(lines))
	}
	for i, w := range want {
		if !strings.Contains(lines[i], "/"+w+".webm") {
			t.Errorf("line %d = %s, want %s", i, lines[i], w)
		}
	}

	recs, err := st.ListRecordings(ctx, "s1")
	if err != nil || len(recs) != 1 {
		t.Errorf("recordings = %d, %v", len(recs), err)
	}
}
