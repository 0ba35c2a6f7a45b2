// Package influxdb provides an optional time-series mirror for
// ingested telemetry.
//
// SQLite remains the system of record; InfluxDB receives a non-blocking
// batched copy of numeric telemetry values for dashboarding and
// retention beyond what the relational store is sized for. When the
// mirror is disabled or unreachable, ingestion proceeds unaffected.
package influxdb
