// Package model holds the API entities mirrored by the stores.
package model

import (
	"time"
)

// Entity is a server-assigned record with an opaque id.
type Entity interface {
	EntityID() string
}

type (
	Account struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Description  string    `json:"description"`
		IsActive     bool      `json:"isActive"`
		IsDefault    bool      `json:"isDefault"`
		CreatedDate  time.Time `json:"createdDate"`
		ModifiedDate time.Time `json:"modifiedDate"`
	}

	AccountRequest struct {
		ID          string `json:"id,omitempty"`
		Name        string `json:"name" validate:"required,notblank,max=100"`
		Description string `json:"description" validate:"required,notblank,max=500"`
		IsActive    bool   `json:"isActive"`
		IsDefault   bool   `json:"isDefault"`
	}

	Category struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Description  string    `json:"description"`
		IsActive     bool      `json:"isActive"`
		Order        int       `json:"order"`
		CreatedDate  time.Time `json:"createdDate"`
		ModifiedDate time.Time `json:"modifiedDate"`
	}

	CategoryRequest struct {
		ID          string `json:"id,omitempty"`
		Name        string `json:"name" validate:"required,notblank,max=100"`
		Description string `json:"description" validate:"max=500"`
		IsActive    bool   `json:"isActive"`
		Order       int    `json:"order" validate:"gte=0"`
	}

	// SortOrder assigns a display position to a category.
	SortOrder struct {
		ID    string `json:"id" validate:"required"`
		Order int    `json:"order" validate:"gte=0"`
	}

	// CategoryRef is the category summary embedded in a transaction.
	CategoryRef struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	}

	Transaction struct {
		ID              string      `json:"id"`
		Amount          Money       `json:"amount"`
		Description     string      `json:"description"`
		Category        CategoryRef `json:"category"`
		CategoryID      string      `json:"categoryId,omitempty"`
		TransactionDate time.Time   `json:"transactionDate"`
		AccountID       string      `json:"accountId"`
		Tags            []string    `json:"tags"`
		CreatedDate     time.Time   `json:"createdDate"`
		ModifiedDate    time.Time   `json:"modifiedDate"`
	}

	TransactionRequest struct {
		ID              string    `json:"id,omitempty"`
		Amount          Money     `json:"amount" validate:"gte=0"`
		Description     string    `json:"description" validate:"required,notblank,max=500"`
		CategoryID      string    `json:"categoryId" validate:"required"`
		TransactionDate time.Time `json:"transactionDate" validate:"required"`
		AccountID       string    `json:"accountId" validate:"required"`
		Tags            []string  `json:"tags" validate:"dive,notblank"`
	}
)

func (a Account) EntityID() string     { return a.ID }
func (c Category) EntityID() string    { return c.ID }
func (t Transaction) EntityID() string { return t.ID }

// CategoryKey returns the category id, preferring the embedded reference.
func (t Transaction) CategoryKey() string {
	if t.Category.ID != "" {
		return t.Category.ID
	}
	return t.CategoryID
}
