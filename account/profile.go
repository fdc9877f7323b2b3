package account

// Profile is a tagged union keyed by role: the base fields are shared and
// exactly one of Customer, Provider or Admin is set, matching the role.
type Profile struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Phone     string   `json:"phone,omitempty"`
	Address   *Address `json:"address,omitempty"`

	Customer *CustomerProfile `json:"customer,omitempty"`
	Provider *ProviderProfile `json:"provider,omitempty"`
	Admin    *AdminProfile    `json:"admin,omitempty"`
}

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

// ContactMethod is a customer's preferred channel.
type ContactMethod string

const (
	ContactEmail ContactMethod = "email"
	ContactPhone ContactMethod = "phone"
	ContactSMS   ContactMethod = "sms"
)

type CustomerProfile struct {
	PreferredContact ContactMethod `json:"preferred_contact"`
}

type ProviderProfile struct {
	Skills          []string `json:"skills"`
	ExperienceYears int      `json:"experience_years"`
	HourlyRate      float64  `json:"hourly_rate"`
	Availability    []string `json:"availability,omitempty"`
	Bio             string   `json:"bio,omitempty"`
	Certifications  []string `json:"certifications,omitempty"`
}

type AdminProfile struct {
	Department string `json:"department"`
}

func (p Profile) clone() Profile {
	c := p
	if p.Address != nil {
		addr := *p.Address
		c.Address = &addr
	}
	if p.Customer != nil {
		cust := *p.Customer
		c.Customer = &cust
	}
	if p.Provider != nil {
		prov := *p.Provider
		prov.Skills = append([]string(nil), p.Provider.Skills...)
		prov.Availability = append([]string(nil), p.Provider.Availability...)
		prov.Certifications = append([]string(nil), p.Provider.Certifications...)
		c.Provider = &prov
	}
	if p.Admin != nil {
		adm := *p.Admin
		c.Admin = &adm
	}
	return c
}
