package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/snapsell/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDraftTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.User{}, &db.Draft{}, &db.Listing{}, &db.SystemSetting{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

type fakePricingGenerator struct {
	mu      sync.Mutex
	calls   int
	tiers   PricingTiers
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakePricingGenerator) GeneratePricing(ctx context.Context, input PricingInput) (PricingResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	if f.err != nil {
		return PricingResult{}, f.err
	}
	return PricingResult{Tiers: f.tiers}, nil
}

func (f *fakePricingGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTextGenerator struct {
	mu    sync.Mutex
	calls int
	text  ListingText
	err   error
}

func (f *fakeTextGenerator) GenerateListingText(ctx context.Context, input ListingTextInput) (ListingTextResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return ListingTextResult{}, f.err
	}
	return ListingTextResult{Text: f.text}, nil
}

func (f *fakeTextGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDraftService(pricing *fakePricingGenerator, text *fakeTextGenerator) *DraftService {
	system := NewSystemSettingService(db.DB)
	return NewDraftService(db.DB, system, pricing, text)
}

func defaultFakes() (*fakePricingGenerator, *fakeTextGenerator) {
	pricing := &fakePricingGenerator{tiers: PricingTiers{Fast: 50, Recommended: 70, Max: 95}}
	text := &fakeTextGenerator{text: ListingText{Title: "Винтидж фотоапарат", Description: "Работи отлично, малки следи от употреба.", PlatformHint: "OLX"}}
	return pricing, text
}

func TestDraftLifecycleHappyPath(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if draft.ID == "" {
		t.Fatal("expected draft to have an ID")
	}
	if draft.Phase != db.DraftPhaseCreated {
		t.Fatalf("expected phase created, got %s", draft.Phase)
	}

	tiers, err := svc.GeneratePricing(ctx, 1, draft.ID)
	if err != nil {
		t.Fatalf("GeneratePricing returned error: %v", err)
	}
	if tiers.Recommended != 70 {
		t.Fatalf("unexpected recommended tier: %v", tiers.Recommended)
	}

	got, err := svc.GetPricing(1, draft.ID)
	if err != nil {
		t.Fatalf("GetPricing returned error: %v", err)
	}
	if got != (PricingTiers{Fast: 50, Recommended: 70, Max: 95}) {
		t.Fatalf("unexpected tiers: %+v", got)
	}

	updated, err := svc.GenerateText(ctx, 1, draft.ID, 70)
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if updated.Phase != db.DraftPhaseTextGenerated {
		t.Fatalf("expected phase text_generated, got %s", updated.Phase)
	}
	if updated.GeneratedTitle != "Винтидж фотоапарат" {
		t.Fatalf("unexpected generated title: %s", updated.GeneratedTitle)
	}
	if updated.SelectedPrice != 70 {
		t.Fatalf("unexpected selected price: %v", updated.SelectedPrice)
	}

	listingID, err := svc.Finalize(1, draft.ID, "Final Title", "Final Desc")
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if listingID == "" {
		t.Fatal("expected listing id")
	}

	var listing db.Listing
	if err := db.DB.First(&listing, "id = ?", listingID).Error; err != nil {
		t.Fatalf("failed to load listing: %v", err)
	}
	if listing.Title != "Final Title" || listing.Description != "Final Desc" {
		t.Fatalf("final text should override generated text, got %q / %q", listing.Title, listing.Description)
	}
	if listing.Price != 70 {
		t.Fatalf("expected listing price 70, got %v", listing.Price)
	}
	if listing.OwnerID != 1 {
		t.Fatalf("unexpected listing owner: %d", listing.OwnerID)
	}
	if listing.ExternalPlatformHint != "OLX" {
		t.Fatalf("expected platform hint to carry over, got %q", listing.ExternalPlatformHint)
	}

	final, err := svc.Get(1, draft.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if final.Phase != db.DraftPhaseFinalized {
		t.Fatalf("expected phase finalized, got %s", final.Phase)
	}
	if final.ListingID != listingID {
		t.Fatalf("draft should record the listing id")
	}

	if pricing.callCount() != 1 || text.callCount() != 1 {
		t.Fatalf("expected one call per generator, got pricing=%d text=%d", pricing.callCount(), text.callCount())
	}
}

func TestCreateDraftRejectsMalformedImageURL(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)

	cases := []string{"", "not-a-url", "ftp://img.example.com/1.jpg", "https://"}
	for _, imageURL := range cases {
		if _, err := svc.Create(1, imageURL); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %q, got %v", imageURL, err)
		}
	}
}

func TestGeneratePricingDuplicateReturnsConflict(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); err != nil {
		t.Fatalf("first GeneratePricing returned error: %v", err)
	}

	_, err = svc.GeneratePricing(ctx, 1, draft.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on replay, got %v", err)
	}
	if CurrentPhase(err) != db.DraftPhasePriced {
		t.Fatalf("conflict should carry current phase, got %q", CurrentPhase(err))
	}

	if pricing.callCount() != 1 {
		t.Fatalf("pricing generator must be invoked exactly once, got %d", pricing.callCount())
	}
}

func TestGeneratePricingConcurrentInvokesGeneratorOnce(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	pricing.started = make(chan struct{}, 1)
	pricing.release = make(chan struct{})
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	results := make(chan error, 2)
	go func() {
		_, err := svc.GeneratePricing(ctx, 1, draft.ID)
		results <- err
	}()

	// 等第一个请求进入生成器后再发起重复请求
	<-pricing.started
	go func() {
		_, err := svc.GeneratePricing(ctx, 1, draft.ID)
		results <- err
	}()
	close(pricing.release)

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected one winner and one conflict, got %d/%d", successes, conflicts)
	}
	if pricing.callCount() != 1 {
		t.Fatalf("pricing generator must be invoked exactly once, got %d", pricing.callCount())
	}

	// 两个调用方最终读到同一份价格
	tiers, err := svc.GetPricing(1, draft.ID)
	if err != nil {
		t.Fatalf("GetPricing returned error: %v", err)
	}
	if tiers != pricing.tiers {
		t.Fatalf("unexpected tiers after concurrent pricing: %+v", tiers)
	}
}

func TestGeneratePricingUpstreamFailureKeepsPhase(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	pricing.err = errors.New("model timeout")
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	fresh, err := svc.Get(1, draft.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fresh.Phase != db.DraftPhaseCreated {
		t.Fatalf("phase must not advance on upstream failure, got %s", fresh.Phase)
	}

	// 重试应重新调用生成器并成功
	pricing.err = nil
	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if pricing.callCount() != 2 {
		t.Fatalf("expected 2 generator calls after retry, got %d", pricing.callCount())
	}
}

func TestGetPricingBeforePricedReturnsNotReady(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	_, err = svc.GetPricing(1, draft.ID)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if CurrentPhase(err) != db.DraftPhaseCreated {
		t.Fatalf("expected phase created in error, got %q", CurrentPhase(err))
	}
}

func TestGenerateTextBeforePricingReturnsInvalidPhase(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	_, err = svc.GenerateText(ctx, 1, draft.ID, 70)
	if !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	if text.callCount() != 0 {
		t.Fatal("text generator must not be invoked out of order")
	}
}

func TestGenerateTextRejectsPriceOutsideTiers(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); err != nil {
		t.Fatalf("GeneratePricing returned error: %v", err)
	}

	_, err = svc.GenerateText(ctx, 1, draft.ID, 999)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for price outside tiers, got %v", err)
	}
	if text.callCount() != 0 {
		t.Fatal("text generator must not be invoked for an invalid price")
	}

	fresh, err := svc.Get(1, draft.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fresh.Phase != db.DraftPhasePriced {
		t.Fatalf("phase must stay priced after rejected price, got %s", fresh.Phase)
	}
}

func TestGenerateTextReplayIsIdempotent(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); err != nil {
		t.Fatalf("GeneratePricing returned error: %v", err)
	}

	first, err := svc.GenerateText(ctx, 1, draft.ID, 70)
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}

	// 相同价格的重放直接返回既有文案
	replay, err := svc.GenerateText(ctx, 1, draft.ID, 70)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if replay.GeneratedTitle != first.GeneratedTitle || replay.GeneratedBody != first.GeneratedBody {
		t.Fatal("replay should return the stored text")
	}
	if text.callCount() != 1 {
		t.Fatalf("text generator must be invoked exactly once, got %d", text.callCount())
	}

	// 不同价格的重放冲突，价格选定后不可变更
	_, err = svc.GenerateText(ctx, 1, draft.ID, 95)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for diverging price, got %v", err)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); err != nil {
		t.Fatalf("GeneratePricing returned error: %v", err)
	}
	if _, err := svc.GenerateText(ctx, 1, draft.ID, 70); err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}

	firstID, err := svc.Finalize(1, draft.ID, "Final Title", "Final Desc")
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}

	secondID, err := svc.Finalize(1, draft.ID, "Final Title", "Final Desc")
	if err != nil {
		t.Fatalf("repeated Finalize returned error: %v", err)
	}
	if firstID != secondID {
		t.Fatalf("repeated finalize must return the same listing id: %s vs %s", firstID, secondID)
	}

	var count int64
	if err := db.DB.Model(&db.Listing{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count listings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one listing, got %d", count)
	}
}

func TestFinalizeStripsHTMLFromFinalText(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); err != nil {
		t.Fatalf("GeneratePricing returned error: %v", err)
	}
	if _, err := svc.GenerateText(ctx, 1, draft.ID, 70); err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}

	listingID, err := svc.Finalize(1, draft.ID, "<b>Title</b>", "Desc <script>alert(1)</script>text")
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}

	var listing db.Listing
	if err := db.DB.First(&listing, "id = ?", listingID).Error; err != nil {
		t.Fatalf("failed to load listing: %v", err)
	}
	if listing.Title != "Title" {
		t.Fatalf("expected tags stripped from title, got %q", listing.Title)
	}
	if listing.Description != "Desc text" {
		t.Fatalf("expected script stripped from description, got %q", listing.Description)
	}
}

func TestFinalizeBeforeTextReturnsInvalidPhase(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); err != nil {
		t.Fatalf("GeneratePricing returned error: %v", err)
	}

	_, err = svc.Finalize(1, draft.ID, "Final Title", "Final Desc")
	if !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	if CurrentPhase(err) != db.DraftPhasePriced {
		t.Fatalf("expected phase priced in error, got %q", CurrentPhase(err))
	}
}

func TestDraftOwnershipGuard(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.Get(2, draft.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on Get, got %v", err)
	}
	if _, err := svc.GeneratePricing(ctx, 2, draft.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on GeneratePricing, got %v", err)
	}
	if pricing.callCount() != 0 {
		t.Fatal("generator must not run for a foreign caller")
	}

	if _, err := svc.Get(1, "no-such-draft"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
}

func TestFinalizeReleasesDraftLock(t *testing.T) {
	cleanup := setupDraftTestDB(t)
	defer cleanup()

	pricing, text := defaultFakes()
	svc := newTestDraftService(pricing, text)
	ctx := context.Background()

	draft, err := svc.Create(1, "https://img.example.com/1.jpg")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.GeneratePricing(ctx, 1, draft.ID); err != nil {
		t.Fatalf("GeneratePricing returned error: %v", err)
	}
	if _, ok := svc.locks.Load(draft.ID); !ok {
		t.Fatal("expected lock entry while draft is active")
	}
	if _, err := svc.GenerateText(ctx, 1, draft.ID, 70); err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}

	listingID, err := svc.Finalize(1, draft.ID, "Final Title", "Final Desc")
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if _, ok := svc.locks.Load(draft.ID); ok {
		t.Fatal("expected lock entry to be released after finalize")
	}

	// 重放仍然幂等，且不会留下新的互斥量
	replayID, err := svc.Finalize(1, draft.ID, "Final Title", "Final Desc")
	if err != nil {
		t.Fatalf("Finalize replay returned error: %v", err)
	}
	if replayID != listingID {
		t.Fatalf("expected same listing id on replay, got %s and %s", listingID, replayID)
	}
	if _, ok := svc.locks.Load(draft.ID); ok {
		t.Fatal("expected replay to release the lock entry again")
	}
}
