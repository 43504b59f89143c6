// Package optimizer orders waypoints to minimize travel distance.
//
// The primary mode keeps the first and last waypoints fixed and anneals the
// interior order. An exhaustive mode searches every ordering of small inputs
// and serves as the correctness oracle for the annealer. A greedy mode
// builds a route by cheapest insertion and polishes it with 2-opt. All work on a
// DistanceMatrix built from a caller-supplied DistanceFunc, so the metric
// (geodesic, road network, planar) is chosen by the host.
package optimizer
