// Package app is the composition layer of the factory service.
//
// It owns the dependency graph: the device store and its optional Redis
// cache, the auth manager, the AI provider, metrics, the rate limiter used
// on AI routes and the housekeeping scheduler. HTTP handlers live in
// internal/app/httpapi and only talk to the Application.
//
//	internal/app/
//	├── application.go   # wiring and lifecycle
//	├── auth/            # admin login and token verification
//	├── domain/device/   # device model
//	├── httpapi/         # routes and handlers
//	├── services/        # devices, genai, housekeeping
//	├── storage/         # interfaces plus memory, sqlstore, rediscache
//	└── system/          # lifecycle manager
package app
