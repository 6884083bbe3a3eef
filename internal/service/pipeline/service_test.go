package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/aliskhannn/album-curator/internal/curator"
	"github.com/aliskhannn/album-curator/internal/model"
	jobrepo "github.com/aliskhannn/album-curator/internal/repository/job"
)

type fakeJobs struct {
	job            model.Job
	getErr         error
	processingErr  error
	markedStatuses []model.JobStatus
	failedMsg      string
}

func (f *fakeJobs) GetByID(_ context.Context, id uuid.UUID) (model.Job, error) {
	if f.getErr != nil {
		return model.Job{}, f.getErr
	}
	return f.job, nil
}

func (f *fakeJobs) MarkProcessing(_ context.Context, _ uuid.UUID) error {
	if f.processingErr != nil {
		return f.processingErr
	}
	f.markedStatuses = append(f.markedStatuses, model.StatusProcessing)
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, _ uuid.UUID, msg string) error {
	f.markedStatuses = append(f.markedStatuses, model.StatusFailed)
	f.failedMsg = msg
	return nil
}

type fakeImages struct {
	images []model.Image
	err    error
}

func (f *fakeImages) GetByKeys(_ context.Context, _ []string) ([]model.Image, error) {
	return f.images, f.err
}

type fakeAlbums struct {
	materializeErr error
	gotProposal    *model.Proposal
	gotImages      []model.Image
	created        []model.Album
	listed         []model.AlbumWithImages
	listErr        error
}

func (f *fakeAlbums) Materialize(_ context.Context, _ int64, _ uuid.UUID, p model.Proposal, images []model.Image) ([]model.Album, error) {
	if f.materializeErr != nil {
		return nil, f.materializeErr
	}
	f.gotProposal = &p
	f.gotImages = images
	f.created = make([]model.Album, len(p.Albums))
	return f.created, nil
}

func (f *fakeAlbums) ListByJob(_ context.Context, _ uuid.UUID) ([]model.AlbumWithImages, error) {
	return f.listed, f.listErr
}

type fakeStorage struct {
	err error
}

func (f *fakeStorage) PresignedURL(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.local/" + key, nil
}

type fakeCurator struct {
	proposal   model.Proposal
	err        error
	gotSources []curator.SourceImage
}

func (f *fakeCurator) Curate(_ context.Context, images []curator.SourceImage) (model.Proposal, error) {
	f.gotSources = images
	if f.err != nil {
		return model.Proposal{}, f.err
	}
	return f.proposal, nil
}

func testJob(keys []string) model.Job {
	return model.Job{
		ID:        uuid.New(),
		UserID:    7,
		Status:    model.StatusPending,
		ImageKeys: keys,
	}
}

func testImages(keys []string) []model.Image {
	images := make([]model.Image, len(keys))
	for i, key := range keys {
		images[i] = model.Image{ID: uuid.New(), UserID: 7, StorageKey: key}
	}
	return images
}

func TestProcessSuccess(t *testing.T) {
	keys := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg"}
	j := testJob(keys)

	proposal := model.Proposal{Albums: []model.ProposedAlbum{
		{Title: "Beach", Theme: "Sea", ImageKeys: keys[:3]},
		{Title: "City", Theme: "Streets", ImageKeys: keys[3:]},
	}}

	jobs := &fakeJobs{job: j}
	albums := &fakeAlbums{}
	cur := &fakeCurator{proposal: proposal}

	svc := NewService(jobs, &fakeImages{images: testImages(keys)}, albums, &fakeStorage{}, cur)

	created, err := svc.Process(context.Background(), model.Task{JobID: j.ID, UserID: j.UserID, ImageKeys: keys})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 2 {
		t.Errorf("albums created = %d, want 2", created)
	}

	if len(jobs.markedStatuses) != 1 || jobs.markedStatuses[0] != model.StatusProcessing {
		t.Errorf("status transitions = %v, want [processing]", jobs.markedStatuses)
	}

	if albums.gotProposal == nil || len(albums.gotProposal.Albums) != 2 {
		t.Fatal("materializer did not receive the curator's proposal")
	}

	if len(cur.gotSources) != len(keys) {
		t.Fatalf("curator received %d sources, want %d", len(cur.gotSources), len(keys))
	}
	for i, src := range cur.gotSources {
		if src.StorageKey != keys[i] {
			t.Errorf("source %d key = %q, want %q", i, src.StorageKey, keys[i])
		}
		if src.ReadURL == "" {
			t.Errorf("source %d has no read url", i)
		}
	}
}

func TestProcessCuratorFailureFallsBack(t *testing.T) {
	keys := []string{"a.jpg", "b.jpg", "c.jpg"}
	j := testJob(keys)

	jobs := &fakeJobs{job: j}
	albums := &fakeAlbums{}
	cur := &fakeCurator{err: errors.New("model returned prose")}

	svc := NewService(jobs, &fakeImages{images: testImages(keys)}, albums, &fakeStorage{}, cur)

	created, err := svc.Process(context.Background(), model.Task{JobID: j.ID, UserID: j.UserID, ImageKeys: keys})
	if err != nil {
		t.Fatalf("curator failure must not fail the job, got: %v", err)
	}
	if created != 1 {
		t.Errorf("albums created = %d, want 1 fallback album", created)
	}

	if albums.gotProposal == nil || len(albums.gotProposal.Albums) != 1 {
		t.Fatal("materializer did not receive the fallback proposal")
	}

	got := albums.gotProposal.Albums[0].ImageKeys
	if len(got) != len(keys) {
		t.Fatalf("fallback album has %d keys, want %d", len(got), len(keys))
	}
	for i, key := range keys {
		if got[i] != key {
			t.Errorf("fallback key %d = %q, want %q", i, got[i], key)
		}
	}

	for _, status := range jobs.markedStatuses {
		if status == model.StatusFailed {
			t.Error("job must not be failed when the fallback applies")
		}
	}
}

func TestProcessDuplicateDeliveryDoesNotRerun(t *testing.T) {
	keys := []string{"a.jpg", "b.jpg"}
	j := testJob(keys)
	j.Status = model.StatusProcessing

	jobs := &fakeJobs{job: j, processingErr: jobrepo.ErrInvalidTransition}
	albums := &fakeAlbums{listed: []model.AlbumWithImages{{}, {}}}
	cur := &fakeCurator{}

	svc := NewService(jobs, &fakeImages{images: testImages(keys)}, albums, &fakeStorage{}, cur)

	created, err := svc.Process(context.Background(), model.Task{JobID: j.ID, UserID: j.UserID, ImageKeys: keys})
	if err != nil {
		t.Fatalf("duplicate delivery must ack, got: %v", err)
	}
	if created != 2 {
		t.Errorf("albums reported = %d, want 2 from the first delivery", created)
	}

	if cur.gotSources != nil {
		t.Error("duplicate delivery must not invoke the curator")
	}
	if albums.gotProposal != nil {
		t.Error("duplicate delivery must not materialize albums")
	}
}

func TestProcessMaterializeRaceAcksWinner(t *testing.T) {
	keys := []string{"a.jpg"}
	j := testJob(keys)

	jobs := &fakeJobs{job: j}
	albums := &fakeAlbums{materializeErr: jobrepo.ErrInvalidTransition, listed: []model.AlbumWithImages{{}}}
	cur := &fakeCurator{proposal: model.Proposal{Albums: []model.ProposedAlbum{
		{Title: "Solo", Theme: "One", ImageKeys: keys},
	}}}

	svc := NewService(jobs, &fakeImages{images: testImages(keys)}, albums, &fakeStorage{}, cur)

	created, err := svc.Process(context.Background(), model.Task{JobID: j.ID, UserID: j.UserID, ImageKeys: keys})
	if err != nil {
		t.Fatalf("lost materialize race must ack, got: %v", err)
	}
	if created != 1 {
		t.Errorf("albums reported = %d, want 1 from the winner", created)
	}

	for _, status := range jobs.markedStatuses {
		if status == model.StatusFailed {
			t.Error("lost race must not fail the job")
		}
	}
}

func TestProcessStorageErrorFailsJob(t *testing.T) {
	keys := []string{"a.jpg", "b.jpg"}
	j := testJob(keys)

	jobs := &fakeJobs{job: j}
	svc := NewService(
		jobs,
		&fakeImages{images: testImages(keys)},
		&fakeAlbums{},
		&fakeStorage{err: errors.New("presign denied")},
		&fakeCurator{},
	)

	_, err := svc.Process(context.Background(), model.Task{JobID: j.ID, UserID: j.UserID, ImageKeys: keys})
	if err == nil {
		t.Fatal("expected a storage error")
	}

	if len(jobs.markedStatuses) != 2 || jobs.markedStatuses[1] != model.StatusFailed {
		t.Errorf("status transitions = %v, want [processing failed]", jobs.markedStatuses)
	}
	if jobs.failedMsg == "" {
		t.Error("failed job must record an error message")
	}
}

func TestProcessMaterializeErrorFailsJob(t *testing.T) {
	keys := []string{"a.jpg"}
	j := testJob(keys)

	jobs := &fakeJobs{job: j}
	svc := NewService(
		jobs,
		&fakeImages{images: testImages(keys)},
		&fakeAlbums{materializeErr: errors.New("connection reset")},
		&fakeStorage{},
		&fakeCurator{proposal: model.Proposal{Albums: []model.ProposedAlbum{
			{Title: "Solo", Theme: "One", ImageKeys: keys},
		}}},
	)

	_, err := svc.Process(context.Background(), model.Task{JobID: j.ID, UserID: j.UserID, ImageKeys: keys})
	if err == nil {
		t.Fatal("expected a materialize error")
	}

	if len(jobs.markedStatuses) != 2 || jobs.markedStatuses[1] != model.StatusFailed {
		t.Errorf("status transitions = %v, want [processing failed]", jobs.markedStatuses)
	}
}

func TestProcessUnknownJob(t *testing.T) {
	svc := NewService(
		&fakeJobs{getErr: jobrepo.ErrJobNotFound},
		&fakeImages{},
		&fakeAlbums{},
		&fakeStorage{},
		&fakeCurator{},
	)

	_, err := svc.Process(context.Background(), model.Task{JobID: uuid.New(), UserID: 1, ImageKeys: []string{"a.jpg"}})
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
