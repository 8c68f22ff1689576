package simplerepo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Permission is the totally ordered access level used by ACL entries,
// scoped grants and permission checks.
type Permission int

// Permission levels, ordered from weakest to strongest.
const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionAdministrate
)

func (p Permission) String() string {
	switch p {
	case PermissionNone:
		return "NONE"
	case PermissionRead:
		return "READ"
	case PermissionWrite:
		return "WRITE"
	case PermissionAdministrate:
		return "ADMINISTRATE"
	default:
		return fmt.Sprintf("PERMISSION(%d)", int(p))
	}
}

// AtLeast reports whether p grants at least the given permission.
func (p Permission) AtLeast(required Permission) bool {
	return p >= required
}

// ParsePermission converts the string form ("NONE", "READ", "WRITE",
// "ADMINISTRATE") back into a Permission.
func ParsePermission(s string) (Permission, error) {
	switch s {
	case "NONE":
		return PermissionNone, nil
	case "READ":
		return PermissionRead, nil
	case "WRITE":
		return PermissionWrite, nil
	case "ADMINISTRATE":
		return PermissionAdministrate, nil
	default:
		return PermissionNone, fmt.Errorf("%w: unknown permission %q", ErrBadArgument, s)
	}
}

// MarshalJSON renders permissions by name so that persisted ACLs and API
// payloads stay readable.
func (p Permission) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePermission(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// State is the lifecycle state of a data resource.
type State string

// Resource lifecycle states. VOLATILE is the initial state; FIXED locks
// plain writes; REVOKED is terminal and hides the resource from
// non-privileged callers.
const (
	StateVolatile State = "VOLATILE"
	StateFixed    State = "FIXED"
	StateRevoked  State = "REVOKED"
)

// IdentifierType classifies resource identifiers.
type IdentifierType string

// Identifier types. Every resource carries exactly one INTERNAL alternate
// identifier which serves as its durable key.
const (
	IdentifierTypeInternal IdentifierType = "INTERNAL"
	IdentifierTypeDOI      IdentifierType = "DOI"
	IdentifierTypeURL      IdentifierType = "URL"
	IdentifierTypeOther    IdentifierType = "OTHER"
)

// DataCite unknown-information values usable in place of a real primary
// identifier.
const (
	ValueToBeAssigned = "(:tba)"
	ValueUnknown      = "(:unkn)"
	ValueNone         = "(:none)"
	ValueNull         = "(:null)"
)

// IsUnknownValue reports whether v is one of the DataCite
// unknown-information placeholder values.
func IsUnknownValue(v string) bool {
	switch v {
	case ValueToBeAssigned, ValueUnknown, ValueNone, ValueNull:
		return true
	}
	return false
}

// Identifier is a resource identifier with its type.
type Identifier struct {
	Value string         `json:"value"`
	Type  IdentifierType `json:"identifierType"`
}

// NewInternalIdentifier returns the mandatory INTERNAL alternate
// identifier for a resource.
func NewInternalIdentifier(value string) Identifier {
	return Identifier{Value: value, Type: IdentifierTypeInternal}
}

// AclEntry grants a permission to a subject. The subject id may denote a
// user principal or a group identity.
type AclEntry struct {
	SID        string     `json:"sid"`
	Permission Permission `json:"permission"`
}

// Agent is a person or organization related to a resource, e.g. a creator.
type Agent struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}

// TitleType classifies resource titles.
type TitleType string

// Title types following the DataCite vocabulary.
const (
	TitleTypeAlternative TitleType = "ALTERNATIVE_TITLE"
	TitleTypeSubtitle    TitleType = "SUBTITLE"
	TitleTypeTranslated  TitleType = "TRANSLATED_TITLE"
	TitleTypeOther       TitleType = "OTHER"
)

// Title is a human-readable resource title.
type Title struct {
	Value string    `json:"value"`
	Type  TitleType `json:"titleType,omitempty"`
}

// TypeGeneral is the coarse DataCite resource category.
type TypeGeneral string

// General resource type categories (subset of the DataCite vocabulary).
const (
	TypeGeneralDataset  TypeGeneral = "DATASET"
	TypeGeneralText     TypeGeneral = "TEXT"
	TypeGeneralImage    TypeGeneral = "IMAGE"
	TypeGeneralSoftware TypeGeneral = "SOFTWARE"
	TypeGeneralOther    TypeGeneral = "OTHER"
)

// ResourceType is the mandatory type of a data resource.
type ResourceType struct {
	Value       string      `json:"value"`
	TypeGeneral TypeGeneral `json:"typeGeneral,omitempty"`
}

// NewResourceType returns a resource type of the DATASET general category.
func NewResourceType(value string) *ResourceType {
	return &ResourceType{Value: value, TypeGeneral: TypeGeneralDataset}
}

// DataResource is a metadata record describing a logical resource together
// with its access control list and lifecycle state.
type DataResource struct {
	// ID is the externally visible identifier: the primary identifier if
	// one with a real value was supplied, otherwise the internal
	// identifier.
	ID                   string        `json:"id,omitempty"`
	Identifier           *Identifier   `json:"identifier,omitempty"`
	AlternateIdentifiers []Identifier  `json:"alternateIdentifiers,omitempty"`
	Creators             []Agent       `json:"creators,omitempty"`
	Titles               []Title       `json:"titles,omitempty"`
	Publisher            string        `json:"publisher,omitempty"`
	PublicationYear      string        `json:"publicationYear,omitempty"`
	ResourceType         *ResourceType `json:"resourceType,omitempty"`
	State                State         `json:"state,omitempty"`
	ACL                  []AclEntry    `json:"acls,omitempty"`
	CreatedAt            time.Time     `json:"createdAt,omitempty"`
	LastUpdate           time.Time     `json:"lastUpdate,omitempty"`
}

// ContentInformation describes one stored bitstream of a data resource at
// a relative path and version.
type ContentInformation struct {
	ID                uuid.UUID `json:"id"`
	ResourceID        string    `json:"resourceId"`
	RelativePath      string    `json:"relativePath"`
	Version           int       `json:"version"`
	Checksum          string    `json:"checksum,omitempty"`
	Size              int64     `json:"size,omitempty"`
	MediaType         string    `json:"mediaType,omitempty"`
	ContentURI        string    `json:"contentUri,omitempty"`
	VersioningService string    `json:"versioningService,omitempty"`
	UploadedBy        string    `json:"uploadedBy,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

// VersionDescriptor describes one stored version as reported by a
// versioning backend.
type VersionDescriptor struct {
	ResourceID string   `json:"resourceId"`
	VersionID  string   `json:"versionId,omitempty"`
	Paths      []string `json:"paths,omitempty"`
}
