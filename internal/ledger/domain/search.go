package domain

func (p Product) SearchName() string      { return p.Name }
func (p Product) SearchCode() string      { return p.Code }
func (p Product) SearchBatches() []string { return nil }

// Customers and suppliers are looked up by phone in place of a code.
func (c Customer) SearchName() string      { return c.Name }
func (c Customer) SearchCode() string      { return c.Phone }
func (c Customer) SearchBatches() []string { return nil }

func (s Supplier) SearchName() string      { return s.Name }
func (s Supplier) SearchCode() string      { return s.Phone }
func (s Supplier) SearchBatches() []string { return nil }
