package prefs

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Choices  []Choice `json:"choices"`
}

var formFields = []Field{
	{Name: FieldOwnNewsApproved, Label: "Your own news is approved after moderation"},
	{Name: FieldOthersNewsPosted, Label: "Other users publish their news"},
	{Name: FieldOthersNewsNeedsModeration, Label: "There are new entries pending moderation", Required: true},
}

// Saver persists preferences. *Store implements it.
type Saver interface {
	SavePreferences(ctx context.Context, p *Preferences) error
}

// Form validates a preferences submission against an instance. The
// moderation field only exists for users who can approve news.
type Form struct {
	instance *Preferences
	fields   []Field
	initial  map[string][]string
	cleaned  map[string][]string
	errors   map[string][]string
	bound    bool
}

// NewForm seeds initial values from instance. A nil instance never gets the
// moderation field.
func NewForm(instance *Preferences, canApprove bool) *Form {
	f := &Form{instance: instance, initial: map[string][]string{}}
	for _, fd := range formFields {
		if fd.Name == FieldOthersNewsNeedsModeration && (instance == nil || !canApprove) {
			continue
		}
		fd.Choices = NewsChoices
		f.fields = append(f.fields, fd)
		if instance != nil {
			f.initial[fd.Name] = slices.Clone(*instance.field(fd.Name))
		}
	}
	return f
}

func (f *Form) Fields() []Field { return f.fields }

func (f *Form) HasField(name string) bool {
	return slices.ContainsFunc(f.fields, func(fd Field) bool { return fd.Name == name })
}

func (f *Form) Initial(name string) []string { return f.initial[name] }

// Bind validates values and reports whether the submission is valid.
// Unknown keys are ignored.
func (f *Form) Bind(values url.Values) bool {
	f.bound = true
	f.cleaned = map[string][]string{}
	f.errors = map[string][]string{}

	for _, fd := range f.fields {
		var picked []string
		for _, v := range values[fd.Name] {
			if !validNewsType(v) {
				f.errors[fd.Name] = append(f.errors[fd.Name],
					fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", v))
				continue
			}
			if !slices.Contains(picked, v) {
				picked = append(picked, v)
			}
		}
		if fd.Required && len(picked) == 0 && len(f.errors[fd.Name]) == 0 {
			f.errors[fd.Name] = append(f.errors[fd.Name], "This field is required.")
		}
		if len(f.errors[fd.Name]) == 0 {
			if picked == nil {
				picked = []string{}
			}
			f.cleaned[fd.Name] = picked
		}
	}
	return len(f.errors) == 0
}

func (f *Form) Valid() bool { return f.bound && len(f.errors) == 0 }

func (f *Form) Errors() map[string][]string { return f.errors }

func (f *Form) Cleaned() map[string][]string { return f.cleaned }

// Save copies cleaned values onto the instance and persists it. Fields not
// on the form keep their stored values.
func (f *Form) Save(ctx context.Context, s Saver) (*Preferences, error) {
	if f.instance == nil {
		return nil, xerrors.New("prefs: form has no instance")
	}
	if !f.Valid() {
		return nil, xerrors.New("prefs: form is not valid")
	}
	for name, v := range f.cleaned {
		*f.instance.field(name) = v
	}
	if err := s.SavePreferences(ctx, f.instance); err != nil {
		return nil, err
	}
	return f.instance, nil
}
