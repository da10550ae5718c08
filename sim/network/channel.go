package network

import (
	"fmt"
	"math"
)

// LightSpeed is the propagation speed in fiber, in meters per picosecond.
const LightSpeed = 2e-4

// PropagationDelay returns the time in ticks (picoseconds) light needs to cross distance meters.
func PropagationDelay(distance float64) int64 {
	return int64(math.Round(distance / LightSpeed))
}

// ClassicalChannel is a one-way, reliable, order-preserving link.
type ClassicalChannel struct {
	Src      string
	Dst      string
	Distance float64 // meters
	Delay    int64   // ticks
}

func (c ClassicalChannel) String() string {
	return fmt.Sprintf("CC.%s.%s", c.Src, c.Dst)
}

// QuantumChannel is a one-way optical fiber. Photons arrive after Delay and
// survive with probability Transmissivity.
type QuantumChannel struct {
	Src         string
	Dst         string
	Distance    float64 // meters
	Attenuation float64 // dB per meter
	Delay       int64   // ticks
}

func (q QuantumChannel) String() string {
	return fmt.Sprintf("QC.%s.%s", q.Src, q.Dst)
}

// Transmissivity returns the probability that a photon survives the fiber.
func (q QuantumChannel) Transmissivity() float64 {
	return math.Pow(10, -q.Attenuation*q.Distance/10)
}

type route struct {
	src, dst string
}
