package store

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"expensetracker/internal/apierr"
	"expensetracker/internal/model"
)

func loadedAccounts(t *testing.T, api *fakeAPI, accounts ...model.Account) *AccountStore {
	t.Helper()
	api.on(http.MethodGet, accountsPath, accounts)
	s := NewAccountStore(api, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return s
}

func TestAccountStore_LoadAllDerivesCurrent(t *testing.T) {
	tests := []struct {
		name     string
		accounts []model.Account
		want     string
	}{
		{
			name:     "default account wins",
			accounts: []model.Account{account("a", false, true), account("b", true, true)},
			want:     "b",
		},
		{
			name:     "first account without default",
			accounts: []model.Account{account("a", false, true), account("b", false, true)},
			want:     "a",
		},
		{
			name: "no accounts",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadedAccounts(t, newFakeAPI(), tt.accounts...)
			snap := s.Snapshot()
			if snap.Status != StatusSuccess || snap.LastAction != ActionLoadAll {
				t.Fatalf("status=%v action=%v", snap.Status, snap.LastAction)
			}
			got := ""
			if snap.Current != nil {
				got = snap.Current.ID
			}
			if got != tt.want {
				t.Fatalf("current = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccountStore_CurrentIsNotStaleAfterReload(t *testing.T) {
	api := newFakeAPI()
	s := loadedAccounts(t, api, account("a", true, true))

	renamed := account("a", true, true)
	renamed.Name = "Renamed"
	api.on(http.MethodGet, accountsPath, []model.Account{renamed, account("b", false, true)})
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	snap := s.Snapshot()
	if snap.Current == nil || snap.Current.Name != "Renamed" {
		t.Fatalf("current = %+v, want the reloaded entity", snap.Current)
	}
	if found, _ := snap.Find("a"); *snap.Current != found {
		t.Fatal("current must equal an element of items")
	}
}

func TestAccountStore_SingleDefault(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, api *fakeAPI, s *AccountStore) error
	}{
		{
			name: "create default",
			run: func(ctx context.Context, api *fakeAPI, s *AccountStore) error {
				api.on(http.MethodPost, accountsPath, account("c", true, true))
				return s.Create(ctx, model.AccountRequest{Name: "C", Description: "C account", IsDefault: true, IsActive: true})
			},
		},
		{
			name: "update to default",
			run: func(ctx context.Context, api *fakeAPI, s *AccountStore) error {
				api.on(http.MethodPut, accountsPath+"/b", account("b", true, true))
				return s.Update(ctx, "b", model.AccountRequest{Name: "B", Description: "B account", IsDefault: true, IsActive: true})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			s := loadedAccounts(t, api, account("a", true, true), account("b", false, true))

			if err := tt.run(context.Background(), api, s); err != nil {
				t.Fatalf("run: %v", err)
			}

			snap := s.Snapshot()
			defaults := 0
			for _, a := range snap.Items {
				if a.IsDefault {
					defaults++
					if a.ID != snap.Selected.ID {
						t.Errorf("default is %q, want response %q", a.ID, snap.Selected.ID)
					}
				}
			}
			if defaults != 1 {
				t.Fatalf("got %d default accounts, want 1", defaults)
			}
		})
	}
}

func TestAccountStore_CreatePrepends(t *testing.T) {
	api := newFakeAPI()
	s := loadedAccounts(t, api, account("a", true, true))
	api.on(http.MethodPost, accountsPath, account("n", false, true))

	if err := s.Create(context.Background(), model.AccountRequest{Name: "N", Description: "N account", IsActive: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	snap := s.Snapshot()
	if !equalIDs(ids(snap.Items), "n", "a") {
		t.Fatalf("items = %v", ids(snap.Items))
	}
	if snap.Selected == nil || snap.Selected.ID != "n" || snap.LastID != "n" {
		t.Fatalf("selected=%v lastID=%q", snap.Selected, snap.LastID)
	}
	if snap.Current == nil || snap.Current.ID != "a" {
		t.Fatalf("current changed to %+v", snap.Current)
	}
}

func TestAccountStore_DeactivatingCurrentMovesCurrent(t *testing.T) {
	api := newFakeAPI()
	s := loadedAccounts(t, api, account("a", true, true), account("b", false, true))
	ctx := context.Background()

	a := account("a", true, true)
	s.SetForEdit(ctx, &a, EditUpdate)

	api.on(http.MethodPut, accountsPath+"/a", account("a", false, false))
	if err := s.Update(ctx, "a", model.AccountRequest{Name: "A", Description: "A account", IsActive: false}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap := s.Snapshot()
	if snap.Current == nil || snap.Current.ID != "b" {
		t.Fatalf("current = %+v, want b", snap.Current)
	}
	if snap.EditMode != EditNone {
		t.Fatalf("editMode = %v, want none", snap.EditMode)
	}
}

func TestAccountStore_DeleteCurrent(t *testing.T) {
	api := newFakeAPI()
	s := loadedAccounts(t, api, account("a", true, true), account("b", false, true), account("c", true, true))
	ctx := context.Background()

	api.on(http.MethodDelete, accountsPath+"/a", nil)
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap := s.Snapshot()
	if snap.Current == nil || snap.Current.ID != "c" {
		t.Fatalf("current = %+v, want remaining default c", snap.Current)
	}

	api.on(http.MethodDelete, accountsPath+"/b", nil)
	api.on(http.MethodDelete, accountsPath+"/c", nil)
	s.Delete(ctx, "b")
	s.Delete(ctx, "c")
	if snap := s.Snapshot(); snap.Current != nil || len(snap.Items) != 0 {
		t.Fatalf("current = %+v items = %v, want none", snap.Current, ids(snap.Items))
	}
}

func TestAccountStore_SetCurrent(t *testing.T) {
	api := newFakeAPI()
	s := loadedAccounts(t, api, account("a", true, true), account("b", false, true))
	ctx := context.Background()
	calls := api.callCount()

	before := s.Snapshot()
	err := s.SetCurrent(ctx, "missing")
	if !errors.Is(err, ErrNotFound) || !apierr.Is(err, apierr.KindNotFoundLocal) {
		t.Fatalf("SetCurrent(missing) = %v", err)
	}
	if after := s.Snapshot(); after.Current.ID != before.Current.ID || after.LastAction != before.LastAction {
		t.Fatal("unknown id must leave state unchanged")
	}

	if err := s.SetCurrent(ctx, "b"); err != nil {
		t.Fatalf("SetCurrent(b): %v", err)
	}
	snap := s.Snapshot()
	if snap.Current.ID != "b" || snap.LastAction != ActionSetCurrent || snap.Status != StatusSuccess || snap.EditMode != EditNone {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if api.callCount() != calls {
		t.Fatal("SetCurrent must not call the API")
	}
}

func TestAccountStore_SetCurrentAfterDelete(t *testing.T) {
	tests := []struct {
		name    string
		deleted []string
		target  string
		wantErr bool
		want    string
	}{
		{name: "deleted account is unknown", deleted: []string{"b"}, target: "b", wantErr: true, want: "a"},
		{name: "remaining account", deleted: []string{"b"}, target: "c", want: "c"},
		{name: "deleted current", deleted: []string{"a"}, target: "a", wantErr: true, want: "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			s := loadedAccounts(t, api, account("a", true, true), account("b", false, true), account("c", false, true))
			ctx := context.Background()
			for _, id := range tt.deleted {
				api.on(http.MethodDelete, accountsPath+"/"+id, nil)
				if err := s.Delete(ctx, id); err != nil {
					t.Fatalf("Delete(%s): %v", id, err)
				}
			}

			err := s.SetCurrent(ctx, tt.target)
			if tt.wantErr != errors.Is(err, ErrNotFound) {
				t.Fatalf("SetCurrent(%s) = %v, wantErr %v", tt.target, err, tt.wantErr)
			}
			snap := s.Snapshot()
			if snap.Current == nil || snap.Current.ID != tt.want {
				t.Fatalf("current = %+v, want %s", snap.Current, tt.want)
			}
			if _, ok := snap.Find(snap.Current.ID); !ok {
				t.Fatalf("current %s is not among items %v", snap.Current.ID, ids(snap.Items))
			}
		})
	}
}

func TestAccountStore_SetCurrentRacesDelete(t *testing.T) {
	api := newFakeAPI()
	s := loadedAccounts(t, api, account("a", true, true), account("b", false, true))
	api.on(http.MethodDelete, accountsPath+"/b", nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Delete(ctx, "b")
	}()
	s.SetCurrent(ctx, "b")
	<-done

	snap := s.Snapshot()
	if snap.Current == nil {
		t.Fatal("current is nil with accounts left")
	}
	if _, ok := snap.Find(snap.Current.ID); !ok {
		t.Fatalf("current %s is not among items %v", snap.Current.ID, ids(snap.Items))
	}
}

func TestAccountStore_ResetClearsCurrent(t *testing.T) {
	s := loadedAccounts(t, newFakeAPI(), account("a", true, true))
	s.Reset(context.Background())

	snap := s.Snapshot()
	if snap.Status != StatusIdle || snap.Current != nil || len(snap.Items) != 0 {
		t.Fatalf("unexpected snapshot after reset %+v", snap)
	}
}
