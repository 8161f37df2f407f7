// Package plan maps subscription tiers to the features and entity limits a tenant receives.
//
// The catalog is YAML:
//
//	plans:
//	  starter:
//	    trial_days: 14
//	    features: [api_access]
//	    limits: {projects: 3, members: 5}
//
// Default returns the embedded catalog; Load reads an override from disk.
package plan
