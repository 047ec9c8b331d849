package exchange

import (
	"sort"

	"github.com/xtrntr/poolshare/internal/models"
)

// Repository stores the engine's books and global order index. The matching
// algorithm only reaches state through it, so a persistent backend can stand
// in for the in-memory one.
type Repository interface {
	Book(poolID string) (*OrderBook, bool)
	SaveBook(book *OrderBook)
	Books() []*OrderBook

	Order(id string) (*models.Order, bool)
	SaveOrder(o *models.Order)
	UserOrders(userID string) []*models.Order
	Orders() []*models.Order
}

// MemoryRepository keeps all state in process memory. It has no crash recovery.
type MemoryRepository struct {
	books  map[string]*OrderBook
	orders map[string]*models.Order
	byUser map[string][]*models.Order
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		books:  make(map[string]*OrderBook),
		orders: make(map[string]*models.Order),
		byUser: make(map[string][]*models.Order),
	}
}

func (r *MemoryRepository) Book(poolID string) (*OrderBook, bool) {
	b, ok := r.books[poolID]
	return b, ok
}

func (r *MemoryRepository) SaveBook(book *OrderBook) {
	r.books[book.PoolID] = book
}

// Books returns every book sorted by pool id
func (r *MemoryRepository) Books() []*OrderBook {
	books := make([]*OrderBook, 0, len(r.books))
	for _, b := range r.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool {
		return books[i].PoolID < books[j].PoolID
	})
	return books
}

func (r *MemoryRepository) Order(id string) (*models.Order, bool) {
	o, ok := r.orders[id]
	return o, ok
}

func (r *MemoryRepository) SaveOrder(o *models.Order) {
	if _, ok := r.orders[o.ID]; !ok {
		r.byUser[o.UserID] = append(r.byUser[o.UserID], o)
	}
	r.orders[o.ID] = o
}

// UserOrders returns a user's orders in admission order
func (r *MemoryRepository) UserOrders(userID string) []*models.Order {
	return r.byUser[userID]
}

// Orders returns every order in admission order
func (r *MemoryRepository) Orders() []*models.Order {
	orders := make([]*models.Order, 0, len(r.orders))
	for _, o := range r.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Seq < orders[j].Seq
	})
	return orders
}
