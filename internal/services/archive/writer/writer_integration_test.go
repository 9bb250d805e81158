//go:build integration_pg
// +build integration_pg

package writer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"statskeep/internal/core/period"
	"statskeep/internal/core/segment"
	perr "statskeep/internal/platform/errors"
	"statskeep/internal/platform/logger"
	"statskeep/internal/platform/store"
	"statskeep/internal/services/archive/domain"
	"statskeep/internal/services/archive/repo"
	"statskeep/internal/services/archive/tables"
	"statskeep/internal/services/archive/writer"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mp, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mp.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func TestWriterLifecycleAgainstPostgres(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	st, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{Enabled: true, URL: dsn, MaxConns: 4},
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	if err := tables.EnsureTemplates(ctx, st.PG); err != nil {
		t.Fatal(err)
	}

	binder := repo.NewPG()
	r := binder.Bind(st.PG)
	if err := r.EnsureLockTable(ctx); err != nil {
		t.Fatal(err)
	}

	d := time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC)
	p, err := period.New(period.KindDay, d)
	if err != nil {
		t.Fatal(err)
	}
	seg, err := segment.Parse("", segment.DefaultRegistry(), segment.Options{})
	if err != nil {
		t.Fatal(err)
	}
	params := domain.Params{SiteID: 1, Period: p, Segment: seg}
	month := tables.Month(d)

	// first archive: numeric + blob, finalized OK
	w := writer.New(binder, st.PG, logger.Get(), params, nil, "itest-salt")
	res, err := w.Init(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res != writer.LockAcquired {
		t.Fatalf("fresh cell must take the processing lease, got %v", res)
	}
	firstID := w.ArchiveID()
	if firstID == 0 {
		t.Fatal("no archive id allocated")
	}
	if err := w.InsertNumeric(ctx, "nb_visits", 7); err != nil {
		t.Fatal(err)
	}
	if err := w.InsertBlob(ctx, "Referrers_keywords", map[int64][]byte{0: []byte("root-blob")}); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(ctx, false); err != nil {
		t.Fatal(err)
	}

	found, err := r.GetArchiveIDAndVisits(ctx, params, []string{"done"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != firstID || found.DoneValue != domain.DoneOK || found.Visits != 7 {
		t.Fatalf("found = %+v", found)
	}

	blobs, err := r.GetArchiveData(ctx, month, []int64{firstID}, []string{"Referrers_keywords"}, domain.KindBlob, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(blobs) != 1 || string(blobs[0].Blob) != "root-blob" {
		t.Fatalf("blob rows = %+v", blobs)
	}

	// second archive of the same cell supersedes the first
	w2 := writer.New(binder, st.PG, logger.Get(), params, nil, "itest-salt")
	if _, err := w2.Init(ctx); err != nil {
		t.Fatal(err)
	}
	secondID := w2.ArchiveID()
	if secondID <= firstID {
		t.Fatalf("second id %d must exceed first %d", secondID, firstID)
	}
	if err := w2.InsertNumeric(ctx, "nb_visits", 9); err != nil {
		t.Fatal(err)
	}
	if err := w2.Finalize(ctx, false); err != nil {
		t.Fatal(err)
	}

	found, err = r.GetArchiveIDAndVisits(ctx, params, []string{"done"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != secondID || found.Visits != 9 {
		t.Fatalf("after rearchive found = %+v", found)
	}
	old, err := r.GetArchiveData(ctx, month, []int64{firstID}, []string{"nb_visits"}, domain.KindNumeric, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 0 {
		t.Fatalf("superseded archive rows survived: %+v", old)
	}

	// invalidation makes the cell not-found so readers recompute
	if _, err := r.InvalidateArchives(ctx, month, []int64{1}, []time.Time{d}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetArchiveIDAndVisits(ctx, params, []string{"done"}, nil); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("invalidated cell must read as not found, got %v", err)
	}
}
