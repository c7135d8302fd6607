// Package observability provides metrics and logging utilities.
package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrProgram = "program"
	attrSite    = "site"
	attrSuccess = "success"
)

func programAttr(program string) attribute.KeyValue {
	return attribute.String(attrProgram, program)
}

func siteAttr(site string) attribute.KeyValue {
	// Empty labels mean the single unlabeled site.
	if site == "" {
		site = "default"
	}
	return attribute.String(attrSite, site)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// WithProgram returns a metric option with the program attribute.
func WithProgram(program string) metric.MeasurementOption {
	return metric.WithAttributes(programAttr(program))
}

// WithSite returns a metric option with the site attribute.
func WithSite(site string) metric.MeasurementOption {
	return metric.WithAttributes(siteAttr(site))
}

// WithSuccess returns a metric option with the success attribute.
func WithSuccess(success bool) metric.MeasurementOption {
	return metric.WithAttributes(successAttr(success))
}
