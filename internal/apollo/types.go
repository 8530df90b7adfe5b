package apollo

// TitleFilters narrows people search to decision makers who can say yes to
// a reputation-ops engagement.
var TitleFilters = []string{
	"Owner", "President", "Founder", "General Manager",
	"Office Manager", "Operations Manager", "Service Manager",
}

// searchResponse covers both the search and bulk-match payload shapes; the
// API is inconsistent about "people" vs "contacts".
type searchResponse struct {
	People   []person `json:"people"`
	Contacts []person `json:"contacts"`
}

type person struct {
	PersonID  string `json:"person_id"`
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Title     string `json:"title"`
	Email     string `json:"email"`
	City      string `json:"city"`
	State     string `json:"state"`

	OrganizationName   string `json:"organization_name"`
	OrganizationDomain string `json:"organization_domain"`
	Domain             string `json:"domain"`

	Organization struct {
		Name          string `json:"name"`
		PrimaryDomain string `json:"primary_domain"`
		WebsiteURL    string `json:"website_url"`
	} `json:"organization"`
}

func (p person) id() string {
	if p.PersonID != "" {
		return p.PersonID
	}
	return p.ID
}

func (p person) orgName() string {
	if p.Organization.Name != "" {
		return p.Organization.Name
	}
	return p.OrganizationName
}

func (p person) orgDomain() string {
	switch {
	case p.Organization.PrimaryDomain != "":
		return p.Organization.PrimaryDomain
	case p.Organization.WebsiteURL != "":
		return p.Organization.WebsiteURL
	case p.OrganizationDomain != "":
		return p.OrganizationDomain
	default:
		return p.Domain
	}
}
