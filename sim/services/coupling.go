package services

// Coupling holds the fixed per-wagon shunting costs.
type Coupling struct {
	CouplePerWagon   int64
	DecouplePerWagon int64
}

// CouplingTime returns the time to couple n wagons to a locomotive.
func (c Coupling) CouplingTime(n int) int64 {
	if n <= 0 {
		return 0
	}
	return c.CouplePerWagon * int64(n)
}

// DecouplingTime returns the time to uncouple n wagons.
func (c Coupling) DecouplingTime(n int) int64 {
	if n <= 0 {
		return 0
	}
	return c.DecouplePerWagon * int64(n)
}
