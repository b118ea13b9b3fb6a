// Package apitest provides an in-memory fake of the expense API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"expensetracker/internal/model"
)

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Query  string
}

type failure struct {
	status int
	body   string
}

// Server is a fake API backed by slices. Exported fields may be set before
// requests are made; use Lock/Unlock when changing them afterwards.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	Token        string
	Accounts     []model.Account
	Categories   []model.Category
	Transactions []model.Transaction
	requests     []Request
	failures     map[string]failure
}

// New starts a fake server. Call Close when done.
func New() *Server {
	s := &Server{failures: make(map[string]failure)}

	r := mux.NewRouter()
	r.Use(s.record, s.auth, s.inject)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/accounts", s.listAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.createAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}", s.getAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", s.updateAccount).Methods(http.MethodPut)
	api.HandleFunc("/accounts/{id}", s.deleteAccount).Methods(http.MethodDelete)

	api.HandleFunc("/categories/sorted-categories", s.sortCategories).Methods(http.MethodPost)
	api.HandleFunc("/categories", s.listCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.createCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.getCategory).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", s.updateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}", s.deleteCategory).Methods(http.MethodDelete)

	api.HandleFunc("/transactions", s.listTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.createTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.getTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.updateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", s.deleteTransaction).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(r)
	return s
}

func (s *Server) Lock()   { s.mu.Lock() }
func (s *Server) Unlock() { s.mu.Unlock() }

// Fail makes every later request matching method and path answer with
// status and body.
func (s *Server) Fail(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, body: body}
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.Token
		s.mu.Unlock()
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if ok {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(f.status)
			w.Write([]byte(f.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what, id string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"title":   "Not Found",
		"status":  http.StatusNotFound,
		"detail":  fmt.Sprintf("%s %s not found", what, id),
		"traceId": uuid.NewString(),
	})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"title":  "Bad Request",
		"status": http.StatusBadRequest,
		"errors": map[string][]string{"body": {err.Error()}},
	})
}

func find[T model.Entity](items []T, id string) int {
	for i := range items {
		if items[i].EntityID() == id {
			return i
		}
	}
	return -1
}

func remove[T model.Entity](items []T, id string) []T {
	out := items[:0:0]
	for _, it := range items {
		if it.EntityID() != id {
			out = append(out, it)
		}
	}
	return out
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]model.Account{}, s.Accounts...))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	i := find(s.Accounts, id)
	if i < 0 {
		notFound(w, "Account", id)
		return
	}
	writeJSON(w, http.StatusOK, s.Accounts[i])
}

func (s *Server) saveAccount(id string, req model.AccountRequest) model.Account {
	now := time.Now().UTC()
	acc := model.Account{
		ID:           id,
		Name:         req.Name,
		Description:  req.Description,
		IsActive:     req.IsActive,
		IsDefault:    req.IsDefault,
		CreatedDate:  now,
		ModifiedDate: now,
	}
	if req.IsDefault {
		for i := range s.Accounts {
			s.Accounts[i].IsDefault = false
		}
	}
	if i := find(s.Accounts, id); i >= 0 {
		acc.CreatedDate = s.Accounts[i].CreatedDate
		s.Accounts[i] = acc
	} else {
		s.Accounts = append(s.Accounts, acc)
	}
	return acc
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req model.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusCreated, s.saveAccount(uuid.NewString(), req))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req model.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	if find(s.Accounts, id) < 0 {
		notFound(w, "Account", id)
		return
	}
	writeJSON(w, http.StatusOK, s.saveAccount(id, req))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Accounts = remove(s.Accounts, mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]model.Category{}, s.Categories...))
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	i := find(s.Categories, id)
	if i < 0 {
		notFound(w, "Category", id)
		return
	}
	writeJSON(w, http.StatusOK, s.Categories[i])
}

func (s *Server) saveCategory(id string, req model.CategoryRequest) model.Category {
	now := time.Now().UTC()
	c := model.Category{
		ID:           id,
		Name:         req.Name,
		Description:  req.Description,
		IsActive:     req.IsActive,
		Order:        req.Order,
		CreatedDate:  now,
		ModifiedDate: now,
	}
	if i := find(s.Categories, id); i >= 0 {
		c.CreatedDate = s.Categories[i].CreatedDate
		s.Categories[i] = c
	} else {
		s.Categories = append(s.Categories, c)
	}
	return c
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req model.CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusCreated, s.saveCategory(uuid.NewString(), req))
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req model.CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	if find(s.Categories, id) < 0 {
		notFound(w, "Category", id)
		return
	}
	writeJSON(w, http.StatusOK, s.saveCategory(id, req))
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Categories = remove(s.Categories, mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sortCategories(w http.ResponseWriter, r *http.Request) {
	var orders []model.SortOrder
	if err := json.NewDecoder(r.Body).Decode(&orders); err != nil {
		badRequest(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range orders {
		if i := find(s.Categories, o.ID); i >= 0 {
			s.Categories[i].Order = o.Order
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// listTransactions filters by calendar month in the client's zone, given as
// minutes east of UTC, and optionally by account.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Transaction{}
	year, yErr := strconv.Atoi(q.Get("year"))
	month, mErr := strconv.Atoi(q.Get("month"))
	offset, _ := strconv.Atoi(q.Get("timezoneOffset"))
	zone := time.FixedZone("client", offset*60)
	accountID := q.Get("accountId")

	for _, t := range s.Transactions {
		if yErr == nil && mErr == nil {
			local := t.TransactionDate.In(zone)
			if local.Year() != year || int(local.Month()) != month {
				continue
			}
		}
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		out = append(out, t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	i := find(s.Transactions, id)
	if i < 0 {
		notFound(w, "Transaction", id)
		return
	}
	writeJSON(w, http.StatusOK, s.Transactions[i])
}

func (s *Server) saveTransaction(id string, req model.TransactionRequest) model.Transaction {
	now := time.Now().UTC()
	ref := model.CategoryRef{ID: req.CategoryID}
	if i := find(s.Categories, req.CategoryID); i >= 0 {
		ref.Value = s.Categories[i].Name
	}
	t := model.Transaction{
		ID:              id,
		Amount:          req.Amount,
		Description:     req.Description,
		Category:        ref,
		CategoryID:      req.CategoryID,
		TransactionDate: req.TransactionDate,
		AccountID:       req.AccountID,
		Tags:            req.Tags,
		CreatedDate:     now,
		ModifiedDate:    now,
	}
	if i := find(s.Transactions, id); i >= 0 {
		t.CreatedDate = s.Transactions[i].CreatedDate
		s.Transactions[i] = t
	} else {
		s.Transactions = append(s.Transactions, t)
	}
	return t
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req model.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusCreated, s.saveTransaction(uuid.NewString(), req))
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var req model.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	if find(s.Transactions, id) < 0 {
		notFound(w, "Transaction", id)
		return
	}
	writeJSON(w, http.StatusOK, s.saveTransaction(id, req))
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	if find(s.Transactions, id) < 0 {
		notFound(w, "Transaction", id)
		return
	}
	s.Transactions = remove(s.Transactions, id)
	w.WriteHeader(http.StatusNoContent)
}
