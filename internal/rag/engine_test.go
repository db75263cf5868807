package rag_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/em-ech/siftopsv1-sub000/internal/bundle"
	"github.com/em-ech/siftopsv1-sub000/internal/rag"
	rag_mocks "github.com/em-ech/siftopsv1-sub000/internal/rag/mocks"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
	"github.com/em-ech/siftopsv1-sub000/internal/testutil"
)

const tenant = "t1"

type askFixture struct {
	manager   *bundle.Manager
	generator *rag_mocks.MockGenerator
	engine    rag.Engine
	chunks    *storage.ChunkRepo
}

func newAskFixture(t *testing.T, opts rag.Options) *askFixture {
	t.Helper()
	db := testutil.NewDB(t)
	docs := storage.NewDocumentRepo(db)
	store := bundle.NewMemoryStore()
	f := &askFixture{
		manager:   bundle.NewManager(store, docs),
		generator: rag_mocks.NewMockGenerator(gomock.NewController(t)),
		chunks:    storage.NewChunkRepo(db),
	}
	f.engine = rag.NewEngine(store, docs, f.chunks, f.generator, opts)
	return f
}

func (f *askFixture) document(t *testing.T, id, title, text string, passages ...string) {
	t.Helper()
	chunks := make([]*storage.ChunkRecord, 0, len(passages))
	for i, p := range passages {
		chunks = append(chunks, &storage.ChunkRecord{
			ID:         fmt.Sprintf("%s-%d", id, i),
			TenantID:   tenant,
			DocumentID: id,
			Ordinal:    i,
			Text:       p,
		})
	}
	_, err := f.chunks.ReplaceForDocument(context.Background(), &storage.DocumentRecord{
		TenantID:   tenant,
		ExternalID: id,
		SourceID:   "catalog",
		Title:      title,
		URL:        "https://example.com/" + id,
		Text:       text,
		Hash:       id,
	}, chunks)
	if err != nil {
		t.Fatalf("ReplaceForDocument() error = %v", err)
	}
}

func (f *askFixture) bundle(t *testing.T, lock bool, members ...string) string {
	t.Helper()
	ctx := context.Background()
	b, err := f.manager.Create(ctx, tenant)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range members {
		if _, err := f.manager.Add(ctx, tenant, b.ID, m); err != nil {
			t.Fatalf("Add(%s) error = %v", m, err)
		}
	}
	if lock {
		if _, err := f.manager.Lock(ctx, tenant, b.ID); err != nil {
			t.Fatal(err)
		}
	}
	return b.ID
}

func TestAsk_RefusesOpenBundle(t *testing.T) {
	f := newAskFixture(t, rag.Options{})
	f.document(t, "boy-brow", "Boy Brow", "Boy Brow is a brow gel, $18")
	f.document(t, "balm", "Balm Dotcom", "Balm Dotcom is a lip balm, $14")
	id := f.bundle(t, false, "boy-brow", "balm")

	f.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := f.engine.Ask(context.Background(), rag.AskRequest{TenantID: tenant, BundleID: id, Question: "price?"})
	if !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("Ask() error = %v, want ErrInvalidState", err)
	}
}

func TestAsk_UnsupportedQuestionReturnsSentinel(t *testing.T) {
	f := newAskFixture(t, rag.Options{})
	f.document(t, "boy-brow", "Boy Brow", "Boy Brow is a brow gel, $18")
	id := f.bundle(t, true, "boy-brow")

	f.generator.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, system, user string) (string, error) {
			if !strings.Contains(user, "[C1] Boy Brow") || !strings.Contains(user, "refund policy") {
				t.Errorf("unexpected user prompt:\n%s", user)
			}
			return rag.NotFoundSentinel, nil
		})

	ans, err := f.engine.Ask(context.Background(), rag.AskRequest{TenantID: tenant, BundleID: id, Question: "What is the refund policy?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if ans.Answer != rag.NotFoundSentinel {
		t.Errorf("Answer = %q, want %q", ans.Answer, rag.NotFoundSentinel)
	}
	if ans.Found || len(ans.Citations) != 0 || ans.Citations == nil {
		t.Errorf("Found = %v, Citations = %#v", ans.Found, ans.Citations)
	}
}

func TestAsk_AnswersWithCitations(t *testing.T) {
	f := newAskFixture(t, rag.Options{})
	f.document(t, "boy-brow", "Boy Brow", "Boy Brow is a brow gel, $18")
	f.document(t, "gone", "Gone", "Will be deleted")
	f.document(t, "balm", "Balm Dotcom", "Balm Dotcom is a lip balm, $14")
	id := f.bundle(t, true, "boy-brow", "gone", "balm")
	if _, err := f.chunks.DeleteDocument(context.Background(), tenant, "gone"); err != nil {
		t.Fatal(err)
	}

	f.generator.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, user string) (string, error) {
			if strings.Contains(user, "Will be deleted") || !strings.Contains(user, "[C2] Balm Dotcom") {
				t.Errorf("missing members should be skipped with dense markers:\n%s", user)
			}
			return "Boy Brow is $18 [C1] and Balm Dotcom is $14 [C2, C5].", nil
		})

	ans, err := f.engine.Ask(context.Background(), rag.AskRequest{TenantID: tenant, BundleID: id, Question: "price?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !ans.Found || ans.EvidenceCount != 2 {
		t.Errorf("Found = %v, EvidenceCount = %d", ans.Found, ans.EvidenceCount)
	}
	if len(ans.Citations) != 2 {
		t.Fatalf("Citations = %+v, want 2", ans.Citations)
	}
	if ans.Citations[0].DocumentID != "boy-brow" || ans.Citations[1].DocumentID != "balm" {
		t.Errorf("Citations = %+v", ans.Citations)
	}
	if ans.Citations[1].Excerpt != "Balm Dotcom is a lip balm, $14" {
		t.Errorf("Excerpt = %q", ans.Citations[1].Excerpt)
	}
}

func TestAsk_ShortCircuits(t *testing.T) {
	tests := []struct {
		name    string
		members []string
	}{
		{name: "locked empty bundle"},
		{name: "only empty documents", members: []string{"blank"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAskFixture(t, rag.Options{})
			f.document(t, "blank", "Blank", "   ")
			id := f.bundle(t, true, tt.members...)
			f.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			ans, err := f.engine.Ask(context.Background(), rag.AskRequest{TenantID: tenant, BundleID: id, Question: "price?"})
			if err != nil {
				t.Fatalf("Ask() error = %v", err)
			}
			if ans.Answer != rag.NotFoundSentinel || len(ans.Citations) != 0 {
				t.Errorf("Ask() = %+v, want sentinel", ans)
			}
		})
	}
}

func TestAsk_GeneratorReplies(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantFound bool
	}{
		{name: "empty reply", reply: "  "},
		{name: "sentinel with extra text", reply: rag.NotFoundSentinel + " [C1]"},
		{name: "uncited answer kept", reply: "It costs $18.", wantFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAskFixture(t, rag.Options{})
			f.document(t, "boy-brow", "Boy Brow", "Boy Brow is a brow gel, $18")
			id := f.bundle(t, true, "boy-brow")
			f.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.reply, nil)

			ans, err := f.engine.Ask(context.Background(), rag.AskRequest{TenantID: tenant, BundleID: id, Question: "price?"})
			if err != nil {
				t.Fatalf("Ask() error = %v", err)
			}
			if ans.Found != tt.wantFound {
				t.Errorf("Found = %v, want %v", ans.Found, tt.wantFound)
			}
			if !tt.wantFound && (ans.Answer != rag.NotFoundSentinel || len(ans.Citations) != 0) {
				t.Errorf("Ask() = %+v, want sentinel", ans)
			}
		})
	}
}

func TestAsk_GenerationFailure(t *testing.T) {
	f := newAskFixture(t, rag.Options{GenerationTimeout: 20 * time.Millisecond})
	f.document(t, "boy-brow", "Boy Brow", "Boy Brow is a brow gel, $18")
	id := f.bundle(t, true, "boy-brow")

	f.generator.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}).
		Times(1)

	_, err := f.engine.Ask(context.Background(), rag.AskRequest{TenantID: tenant, BundleID: id, Question: "price?"})
	if !errors.Is(err, service.ErrUpstreamUnavailable) {
		t.Fatalf("Ask() error = %v, want ErrUpstreamUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Ask() error = %v, want wrapped DeadlineExceeded", err)
	}
	if !service.IsRetryable(err) {
		t.Error("generation failure should be retryable by the caller")
	}
}

func TestAsk_Preconditions(t *testing.T) {
	f := newAskFixture(t, rag.Options{})
	f.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	tests := []struct {
		name    string
		req     rag.AskRequest
		wantErr error
	}{
		{name: "empty question", req: rag.AskRequest{TenantID: tenant, BundleID: "x", Question: " "}, wantErr: service.ErrInvalidInput},
		{name: "missing bundle", req: rag.AskRequest{TenantID: tenant, BundleID: "missing", Question: "price?"}, wantErr: service.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Ask(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Ask() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAsk_SelectsPassagesBeyondBudget(t *testing.T) {
	filler := strings.Repeat("Our shipping partners deliver across the country in most weather. ", 20)
	passages := []string{filler, filler, filler, filler, filler, filler, "The refund window is 30 days."}
	text := strings.Join(passages, " ")
	if len([]rune(text)) <= rag.DefaultMaxEvidenceRunes {
		t.Fatalf("document has %d runes, want more than the evidence budget", len([]rune(text)))
	}

	f := newAskFixture(t, rag.Options{})
	f.document(t, "policy", "Store Policy", text, passages...)
	id := f.bundle(t, true, "policy")

	f.generator.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, user string) (string, error) {
			if !strings.Contains(user, "30 days") {
				t.Errorf("prompt is missing the matching passage:\n%s", user)
			}
			if n := len([]rune(user)); n > rag.DefaultMaxEvidenceRunes+500 {
				t.Errorf("prompt has %d runes, evidence budget not honored", n)
			}
			return "Refunds are accepted within 30 days [C1].", nil
		})

	ans, err := f.engine.Ask(context.Background(), rag.AskRequest{TenantID: tenant, BundleID: id, Question: "How long is the refund window?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(ans.Citations) != 1 {
		t.Fatalf("Citations = %+v, want 1", ans.Citations)
	}
	if got := ans.Citations[0].Excerpt; got != "The refund window is 30 days." {
		t.Errorf("Excerpt = %q, want the passage that was sent", got)
	}
}
