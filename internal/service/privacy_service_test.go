package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/security/anonymizer"
	"github.com/yourorg/staybook/internal/security/audit"
)

func newPrivacyService(t *testing.T, store *memStore) *PrivacyService {
	t.Helper()
	anon, err := anonymizer.New("unit-test-secret")
	if err != nil {
		t.Fatalf("anonymizer: %v", err)
	}
	log := discardLogger()
	return NewPrivacyService(store, anon, audit.NewLogger(log), log, testClock)
}

func seedIdentity(store *memStore) {
	store.users["u-1"] = &domain.User{
		ID:        "u-1",
		Email:     "maria@example.com",
		Username:  "maria",
		FirstName: "Maria",
		LastName:  "Kovacs",
		Phone:     "+36 1 234 5678",
		About:     "Host since 2019",
	}
	store.profiles["prof-1"] = &domain.LandlordProfile{
		ID: "prof-1", UserID: "u-1", Kind: domain.ProfileIndividual,
		Name: "Maria Kovacs", Email: "maria@example.com", Phone: "+36 1 234 5678",
		Address: "Budapest", Description: "Cosy flats downtown",
	}
	store.employees["emp-1"] = &domain.Employee{
		ID: "emp-1", ProfileID: "comp-9", UserID: "u-1", FullName: "Maria Kovacs",
	}
	store.dependents["rev-1"] = &domain.Dependent{
		ID: "rev-1", PropertyID: "prop-9", Kind: domain.DependentReview,
		AuthorID: "u-1", Body: "Great stay!",
	}
	store.discounts["disc-1"] = &domain.Discount{
		ID: "disc-1", PropertyID: "prop-9", CreatedBy: "u-1", Status: domain.DiscountActive,
	}
}

func TestDepersonalizeClearsIdentityAndRewritesReferences(t *testing.T) {
	store := newMemStore()
	seedIdentity(store)

	svc := newPrivacyService(t, store)
	if err := svc.Depersonalize(context.Background(), "u-1", "gdpr request"); err != nil {
		t.Fatalf("depersonalize: %v", err)
	}

	u := store.users["u-1"]
	if !u.IsDepersonalized || u.AnonymizedToken == "" {
		t.Fatal("expected terminal marker and token set")
	}
	if u.FirstName != "" || u.LastName != "" || u.Phone != "" || u.About != "" {
		t.Fatal("personal fields must be cleared")
	}
	if strings.Contains(u.Email, "maria") {
		t.Fatalf("email still identifies the user: %s", u.Email)
	}
	if !u.IsDeleted || u.DeletedAt == nil {
		t.Fatal("depersonalization also soft-deletes the account")
	}

	token := u.AnonymizedToken

	// Every reference must now point at the token, with the relation
	// itself preserved.
	emp := store.employees["emp-1"]
	if emp.UserID != "" || emp.UserToken != token {
		t.Fatalf("employee reference not rewritten: userID=%q token=%q", emp.UserID, emp.UserToken)
	}
	if emp.FullName == "" {
		t.Fatal("employee display snapshot must survive")
	}

	rev := store.dependents["rev-1"]
	if rev.AuthorID != "" || rev.AuthorToken != token {
		t.Fatal("review authorship not rewritten")
	}
	if rev.Body != "Great stay!" {
		t.Fatal("non-personal review content must survive")
	}

	disc := store.discounts["disc-1"]
	if disc.CreatedBy != "" || disc.CreatedByToken != token {
		t.Fatal("discount creator not rewritten")
	}
	if disc.Status != domain.DiscountCancelled {
		t.Fatalf("active discount of erased user should be cancelled, got %s", disc.Status)
	}

	prof := store.profiles["prof-1"]
	if strings.Contains(prof.Name, "Maria") || strings.Contains(prof.Email, "maria") {
		t.Fatal("individual profile still identifies the user")
	}
	if prof.CreatedByToken != token || !prof.IsDeleted {
		t.Fatal("individual profile must be tokenized and deleted")
	}
	if prof.UserID != "" {
		t.Fatal("individual profile must drop the user reference")
	}
}

func TestDepersonalizeIdempotent(t *testing.T) {
	store := newMemStore()
	seedIdentity(store)

	svc := newPrivacyService(t, store)
	ctx := context.Background()
	if err := svc.Depersonalize(ctx, "u-1", ""); err != nil {
		t.Fatalf("first call: %v", err)
	}

	tokenAfterFirst := store.users["u-1"].AnonymizedToken
	emailAfterFirst := store.users["u-1"].Email

	if err := svc.Depersonalize(ctx, "u-1", ""); err != nil {
		t.Fatalf("second call must be a no-op, got %v", err)
	}
	if store.users["u-1"].AnonymizedToken != tokenAfterFirst {
		t.Fatal("token changed on re-invocation")
	}
	if store.users["u-1"].Email != emailAfterFirst {
		t.Fatal("fields mutated on re-invocation")
	}
}

func TestDepersonalizeTokenDeterministic(t *testing.T) {
	storeA := newMemStore()
	seedIdentity(storeA)
	storeB := newMemStore()
	seedIdentity(storeB)

	svcA := newPrivacyService(t, storeA)
	svcB := newPrivacyService(t, storeB)

	if err := svcA.Depersonalize(context.Background(), "u-1", ""); err != nil {
		t.Fatal(err)
	}
	if err := svcB.Depersonalize(context.Background(), "u-1", ""); err != nil {
		t.Fatal(err)
	}
	if storeA.users["u-1"].AnonymizedToken != storeB.users["u-1"].AnonymizedToken {
		t.Fatal("same user+secret must derive the same token")
	}
}

func TestDepersonalizeMissingUser(t *testing.T) {
	svc := newPrivacyService(t, newMemStore())
	err := svc.Depersonalize(context.Background(), "ghost", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDepersonalizeOfDeletedUser(t *testing.T) {
	store := newMemStore()
	seedIdentity(store)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.users["u-1"].IsDeleted = true
	store.users["u-1"].DeletedAt = &at

	svc := newPrivacyService(t, store)
	if err := svc.Depersonalize(context.Background(), "u-1", ""); err != nil {
		t.Fatalf("deletion state must not block erasure: %v", err)
	}
	if !store.users["u-1"].IsDepersonalized {
		t.Fatal("expected depersonalization of deleted user")
	}
}
