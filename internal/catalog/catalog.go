// Package catalog caches the active doctor and department lists, which are
// read on nearly every inbound message.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
)

type Loader interface {
	ListActiveDoctors(ctx context.Context) ([]appointment.Doctor, error)
	ListActiveDepartments(ctx context.Context) ([]appointment.Department, error)
}

type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time

	mu          sync.Mutex
	doctors     []appointment.Doctor
	doctorsAt   time.Time
	departments []appointment.Department
	deptsAt     time.Time
}

// New returns a cache over loader. A ttl of zero disables caching.
func New(loader Loader, ttl time.Duration) *Cache {
	return &Cache{loader: loader, ttl: ttl, now: time.Now}
}

func (c *Cache) Doctors(ctx context.Context) ([]appointment.Doctor, error) {
	c.mu.Lock()
	if c.fresh(c.doctorsAt) {
		out := c.doctors
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	doctors, err := c.loader.ListActiveDoctors(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.doctors = doctors
	c.doctorsAt = c.now()
	c.mu.Unlock()
	return doctors, nil
}

func (c *Cache) Departments(ctx context.Context) ([]appointment.Department, error) {
	c.mu.Lock()
	if c.fresh(c.deptsAt) {
		out := c.departments
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	depts, err := c.loader.ListActiveDepartments(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.departments = depts
	c.deptsAt = c.now()
	c.mu.Unlock()
	return depts, nil
}

// DoctorsInDepartment filters the cached doctors by department label.
func (c *Cache) DoctorsInDepartment(ctx context.Context, dept string) ([]appointment.Doctor, error) {
	doctors, err := c.Doctors(ctx)
	if err != nil {
		return nil, err
	}
	var out []appointment.Doctor
	for _, d := range doctors {
		if d.InDepartment(dept) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Invalidate drops both lists so the next read reloads them.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.doctorsAt = time.Time{}
	c.deptsAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) fresh(at time.Time) bool {
	return c.ttl > 0 && !at.IsZero() && c.now().Sub(at) < c.ttl
}
