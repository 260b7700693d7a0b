// Package services provides the centralized service registry for diagramd.
//
// Registry pattern for accessing the core services (pipeline executor,
// session registry, analyzers, generator, quality gate, advisor, model
// client). Use NewRegistry() to create a registry with service instances,
// then accessor methods to retrieve individual services.
package services
