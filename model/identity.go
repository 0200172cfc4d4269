/*
Copyright 2025 Quanta Ledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

// IdentityRole partitions ledger credentials by the class of commands they
// may sign. Privileged identities are reserved for infrequent operations that
// must be independently verifiable; ordinary identities carry the high-volume
// user traffic and must never block on the privileged path.
type IdentityRole string

const (
	RoleOrdinary   IdentityRole = "ordinary"
	RolePrivileged IdentityRole = "privileged"
)

// LedgerIdentity is a named credential bound to one organization and one
// network endpoint. Credential material is opaque to the dispatcher's
// business logic and is rotated out-of-band without code changes.
type LedgerIdentity struct {
	Name           string       `json:"name"`
	Role           IdentityRole `json:"role"`
	OrganizationID string       `json:"organization_id"`
	Endpoint       string       `json:"endpoint"`
	CredentialPath string       `json:"credential_path"`
}
