package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bingo-sales/internal/grid"
	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
)

type memState struct {
	vendors map[string]model.Vendor
	cards   map[string]model.Card
	sales   map[string]model.Sale
	ledger  []model.LedgerEntry
}

func (s memState) clone() memState {
	return memState{
		vendors: maps.Clone(s.vendors),
		cards:   maps.Clone(s.cards),
		sales:   maps.Clone(s.sales),
		ledger:  slices.Clone(s.ledger),
	}
}

func cardKey(eventDate, id string) string { return eventDate + "/" + id }

// memRepo хранит данные в памяти. WithTx работает с копией состояния и
// подменяет состояние только при успешном завершении fn.
type memRepo struct {
	mu      sync.Mutex
	state   memState
	txCount int
	failAt  map[string]error
	stats   map[string]model.VendorStats
}

func newMemRepo() *memRepo {
	return &memRepo{
		state: memState{
			vendors: map[string]model.Vendor{},
			cards:   map[string]model.Card{},
			sales:   map[string]model.Sale{},
		},
		failAt: map[string]error{},
		stats:  map[string]model.VendorStats{},
	}
}

func (r *memRepo) addVendor(v model.Vendor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.vendors[v.ID] = v
}

func (r *memRepo) addCard(c model.Card) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.cards[cardKey(c.EventDate, c.ID)] = c
}

func (r *memRepo) card(eventDate, id string) model.Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.cards[cardKey(eventDate, id)]
}

func (r *memRepo) saleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.sales)
}

func (r *memRepo) ledger() []model.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.ledger)
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) Ping(context.Context) error { return r.failAt["Ping"] }

func (r *memRepo) WithTx(_ context.Context, fn func(tx repository.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.txCount++
	staged := r.state.clone()
	if err := fn(&memTx{st: &staged, failAt: r.failAt}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

type memTx struct {
	st     *memState
	failAt map[string]error
}

func (t *memTx) fail(op string) error { return t.failAt[op] }

func (t *memTx) LockCard(_ context.Context, eventDate, cardID string) (*model.Card, error) {
	if err := t.fail("LockCard"); err != nil {
		return nil, err
	}
	c, ok := t.st.cards[cardKey(eventDate, cardID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", repository.ErrCardNotFound, eventDate, cardID)
	}
	return &c, nil
}

func (t *memTx) GetVendor(_ context.Context, id string) (*model.Vendor, error) {
	if err := t.fail("GetVendor"); err != nil {
		return nil, err
	}
	v, ok := t.st.vendors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrVendorNotFound, id)
	}
	return &v, nil
}

func (t *memTx) InsertSale(_ context.Context, s *model.Sale) error {
	if err := t.fail("InsertSale"); err != nil {
		return err
	}
	for _, existing := range t.st.sales {
		if existing.CardID == s.CardID && existing.EventDate == s.EventDate {
			return repository.ErrCardAlreadySold
		}
	}
	t.st.sales[s.ID] = *s
	return nil
}

func (t *memTx) MarkCardSold(_ context.Context, eventDate, cardID, saleID string) error {
	if err := t.fail("MarkCardSold"); err != nil {
		return err
	}
	key := cardKey(eventDate, cardID)
	c, ok := t.st.cards[key]
	if !ok || c.Sold {
		return repository.ErrCardAlreadySold
	}
	c.Sold = true
	c.SaleID = &saleID
	t.st.cards[key] = c
	return nil
}

func (t *memTx) InsertLedgerEntries(_ context.Context, entries []model.LedgerEntry) error {
	if err := t.fail("InsertLedgerEntries"); err != nil {
		return err
	}
	t.st.ledger = append(t.st.ledger, entries...)
	return nil
}

func (t *memTx) SetCardAssignee(_ context.Context, eventDate, cardID string, vendorID *string) error {
	if err := t.fail("SetCardAssignee"); err != nil {
		return err
	}
	key := cardKey(eventDate, cardID)
	c, ok := t.st.cards[key]
	if !ok || c.Sold {
		return repository.ErrCardAlreadySold
	}
	c.AssignedTo = vendorID
	t.st.cards[key] = c
	return nil
}

func (t *memTx) LockAssignableCards(_ context.Context, eventDate string, owner *string, limit int) ([]model.Card, error) {
	if err := t.fail("LockAssignableCards"); err != nil {
		return nil, err
	}
	var out []model.Card
	for _, c := range sortedCards(t.st.cards, eventDate) {
		if c.Sold || !samePtr(c.AssignedTo, owner) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) LockCardsByNumber(_ context.Context, eventDate string, cardNos []int) ([]model.Card, error) {
	if err := t.fail("LockCardsByNumber"); err != nil {
		return nil, err
	}
	var out []model.Card
	for _, c := range sortedCards(t.st.cards, eventDate) {
		if slices.Contains(cardNos, c.CardNo) {
			out = append(out, c)
		}
	}
	return out, nil
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (t *memTx) DeleteCard(_ context.Context, eventDate, cardID string) error {
	if err := t.fail("DeleteCard"); err != nil {
		return err
	}
	key := cardKey(eventDate, cardID)
	c, ok := t.st.cards[key]
	if !ok || c.Sold {
		return repository.ErrCardAlreadySold
	}
	delete(t.st.cards, key)
	return nil
}

func (r *memRepo) CreateVendor(_ context.Context, v *model.Vendor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.vendors[v.ID] = *v
	return nil
}

func (r *memRepo) GetVendor(_ context.Context, id string) (*model.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.state.vendors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrVendorNotFound, id)
	}
	return &v, nil
}

func (r *memRepo) ListVendors(_ context.Context, leaderID *string) ([]model.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Vendor
	for _, v := range r.state.vendors {
		if leaderID == nil || (v.LeaderID != nil && *v.LeaderID == *leaderID) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) UpdateVendor(_ context.Context, id string, u repository.VendorUpdate) (*model.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.state.vendors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrVendorNotFound, id)
	}
	if u.Name != nil {
		v.Name = *u.Name
	}
	if u.Phone != nil {
		v.Phone = u.Phone
	}
	if u.IsActive != nil {
		v.IsActive = *u.IsActive
	}
	r.state.vendors[id] = v
	return &v, nil
}

func (r *memRepo) DeleteVendor(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.vendors[id]; !ok {
		return repository.ErrVendorNotFound
	}
	for _, v := range r.state.vendors {
		if (v.LeaderID != nil && *v.LeaderID == id) || (v.SellerID != nil && *v.SellerID == id) {
			return repository.ErrVendorInUse
		}
	}
	for _, s := range r.state.sales {
		if s.SellerID == id {
			return repository.ErrVendorInUse
		}
	}
	for _, c := range r.state.cards {
		if !c.Sold && c.AssignedTo != nil && *c.AssignedTo == id {
			return repository.ErrVendorInUse
		}
	}
	delete(r.state.vendors, id)
	return nil
}

func (r *memRepo) GetVendorBalance(_ context.Context, id string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, e := range r.state.ledger {
		if e.VendorID == id {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (r *memRepo) GetVendorStats(_ context.Context, id string) (*model.VendorStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats[id]
	st.VendorID = id
	return &st, nil
}

func (r *memRepo) CreateCards(_ context.Context, eventDate string, cards []model.Card) error {
	if err := r.failAt["CreateCards"]; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	maxNo := 0
	taken := map[int]bool{}
	for _, c := range r.state.cards {
		if c.EventDate == eventDate {
			taken[c.CardNo] = true
			maxNo = max(maxNo, c.CardNo)
		}
	}
	for i := range cards {
		if cards[i].CardNo == 0 {
			maxNo++
			cards[i].CardNo = maxNo
		} else if taken[cards[i].CardNo] {
			return repository.ErrCardNoTaken
		}
		taken[cards[i].CardNo] = true
		cards[i].EventDate = eventDate
	}
	for _, c := range cards {
		r.state.cards[cardKey(eventDate, c.ID)] = c
	}
	return nil
}

func (r *memRepo) GetCard(_ context.Context, eventDate, id string) (*model.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.state.cards[cardKey(eventDate, id)]
	if !ok {
		return nil, repository.ErrCardNotFound
	}
	return &c, nil
}

func (r *memRepo) eventCards(eventDate string) []model.Card {
	return sortedCards(r.state.cards, eventDate)
}

func sortedCards(cards map[string]model.Card, eventDate string) []model.Card {
	var out []model.Card
	for _, c := range cards {
		if c.EventDate == eventDate {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardNo < out[j].CardNo })
	return out
}

func (r *memRepo) CountCardsByVendor(_ context.Context, eventDate string, vendorIDs []string) (map[string]model.CardCounts, error) {
	if err := r.failAt["CountCardsByVendor"]; err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]model.CardCounts{}
	for _, c := range r.eventCards(eventDate) {
		if c.AssignedTo == nil || !slices.Contains(vendorIDs, *c.AssignedTo) {
			continue
		}
		cc := out[*c.AssignedTo]
		cc.Assigned++
		if c.Sold {
			cc.Sold++
		}
		out[*c.AssignedTo] = cc
	}
	return out, nil
}

func (r *memRepo) ListCards(_ context.Context, f repository.CardFilter) ([]model.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Card
	for _, c := range r.eventCards(f.EventDate) {
		if c.CardNo <= f.AfterCardNo {
			continue
		}
		if f.Sold != nil && c.Sold != *f.Sold {
			continue
		}
		if f.AssignedTo != nil && (c.AssignedTo == nil || *c.AssignedTo != *f.AssignedTo) {
			continue
		}
		out = append(out, c)
		if len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (r *memRepo) SearchCards(_ context.Context, eventDate string, cardNo int) ([]model.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Card
	for _, c := range r.eventCards(eventDate) {
		if c.CardNo == cardNo {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) ListUnsoldCards(_ context.Context, eventDate string) ([]model.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Card
	for _, c := range r.eventCards(eventDate) {
		if !c.Sold {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) CardTotals(_ context.Context, eventDate string) (*model.CardTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cards := r.eventCards(eventDate)
	t := &model.CardTotals{TotalCards: len(cards), TotalDocuments: len(cards)}
	for _, c := range cards {
		t.MaxCardNo = max(t.MaxCardNo, c.CardNo)
	}
	return t, nil
}

func (r *memRepo) ReplaceCardGrids(_ context.Context, eventDate string, grids map[string][]int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, numbers := range grids {
		key := cardKey(eventDate, id)
		c, ok := r.state.cards[key]
		if !ok || c.Sold {
			continue
		}
		c.Numbers = numbers
		c.GridSize = grid.Size
		c.WasCorrected = true
		r.state.cards[key] = c
		n++
	}
	return n, nil
}

func (r *memRepo) ListSales(_ context.Context, f repository.SaleFilter) ([]model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Sale
	for _, s := range r.state.sales {
		if f.SellerID != nil && s.SellerID != *f.SellerID {
			continue
		}
		if f.From != nil && s.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && s.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memRepo) GetSale(_ context.Context, id string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.state.sales[id]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	return &s, nil
}

func (r *memRepo) GetLedgerEntriesBySale(_ context.Context, saleID string) ([]model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range r.state.ledger {
		if e.SaleID == saleID {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []model.CardStateChange
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, c model.CardStateChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) all() []model.CardStateChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.changes)
}
