package memory

import (
	"sync"

	"github.com/flashsale/checkout/internal/domain"
)

// productRepositoryInMemory is a development/test ProductRepository.
// The package mutex stands in for the row lock a real Store takes.
type productRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Product
}

// NewProductRepository returns an in-memory ProductRepository seeded
// with the given products, keyed by ID.
func NewProductRepository(seed ...domain.Product) domain.ProductRepository {
	items := make(map[string]domain.Product, len(seed))
	for _, p := range seed {
		items[p.ID] = p
	}
	return &productRepositoryInMemory{items: items}
}

func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (r *productRepositoryInMemory) WithProductLock(id string, fn func(p domain.Product, save func(domain.Product) error) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}

	saved := false
	save := func(next domain.Product) error {
		r.items[id] = next
		saved = true
		return nil
	}

	if err := fn(p, save); err != nil {
		return err
	}
	_ = saved
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
