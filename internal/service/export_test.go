package service

// InflightGuard exposes the guard to the external test package.
type InflightGuard = inflightGuard
