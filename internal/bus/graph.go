package bus

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Node names used in the reaction table.
const (
	NodeSession      = "session"
	NodeAccounts     = "accounts"
	NodeCategories   = "categories"
	NodeTransactions = "transactions"
	NodeWindow       = "window"
	NodeNotify       = "notify"
)

// Reaction is one row of the reaction table: when a Source transitions and
// When holds, Do runs and may operate on Targets only.
type Reaction struct {
	Name    string
	Sources []string
	Targets []string
	When    func(b *Bus, e Event) bool
	Do      func(b *Bus, ctx context.Context, e Event)
}

// Table is the complete set of cross-store reactions. Rows fire in order.
var Table = []Reaction{
	{
		Name:    "sign-in",
		Sources: []string{NodeSession},
		Targets: []string{NodeAccounts, NodeCategories},
		When:    func(_ *Bus, e Event) bool { return e.SignedIn },
		Do:      (*Bus).signIn,
	},
	{
		Name:    "sign-out",
		Sources: []string{NodeSession},
		Targets: []string{NodeAccounts, NodeCategories, NodeTransactions, NodeWindow},
		When:    func(_ *Bus, e Event) bool { return e.SignedOut },
		Do:      (*Bus).signOut,
	},
	{
		Name:    "account-scope",
		Sources: []string{NodeAccounts},
		Targets: []string{NodeWindow, NodeTransactions},
		When:    func(_ *Bus, e Event) bool { return affectsScope(e.Accounts) },
		Do:      (*Bus).rescope,
	},
	{
		Name:    "transaction-window",
		Sources: []string{NodeTransactions},
		Targets: []string{NodeWindow},
		When:    (*Bus).patchesWindow,
		Do:      (*Bus).patchWindow,
	},
	{
		Name:    "error-toast",
		Sources: []string{NodeSession, NodeAccounts, NodeCategories, NodeTransactions},
		Targets: []string{NodeNotify},
		When:    func(b *Bus, e Event) bool { return b.reporter != nil && e.reportable() },
		Do:      (*Bus).toast,
	},
}

// CheckAcyclic returns an error naming a cycle if the reactions can trigger
// each other indefinitely.
func CheckAcyclic(table []Reaction) error {
	edges := make(map[string][]string)
	for _, r := range table {
		for _, s := range r.Sources {
			edges[s] = append(edges[s], r.Targets...)
		}
	}

	nodes := make([]string, 0, len(edges))
	for n := range edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var path []string

	var visit func(n string) error
	visit = func(n string) error {
		switch state[n] {
		case visiting:
			return fmt.Errorf("reaction cycle: %s -> %s", strings.Join(path, " -> "), n)
		case done:
			return nil
		}
		state[n] = visiting
		path = append(path, n)
		for _, next := range edges[n] {
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[n] = done
		return nil
	}

	for _, n := range nodes {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
