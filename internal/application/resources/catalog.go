package resources

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/application/crud"
	"eduadmin/internal/domain/account"
)

// Lookup names shared by several resources.
const (
	LookupUsers         = "users"
	LookupCenters       = "centers"
	LookupSections      = "sections"
	LookupCategories    = "categories"
	LookupSchedules     = "schedules"
	LookupSubscriptions = "subscriptions"
)

// Messages shown to the person using the console.
const (
	MsgStaffCreateFailed = "Ошибка при регистрации менеджера"
	MsgIINNotFound       = "Пользователь с таким ИИН не найден"
)

// Catalog returns every generic resource keyed by name.
func Catalog() map[string]*crud.Resource {
	out := map[string]*crud.Resource{}
	for _, r := range []*crud.Resource{Centers(), Sections(), Schedules(), Subscriptions(), Records(), Users()} {
		out[r.Name] = r
	}
	return out
}

func usersLookup(shape crud.ListShape) crud.Lookup {
	return crud.Lookup{Name: LookupUsers, Endpoint: api.Users, Shape: shape, Label: PersonName}
}

// Centers is the center list: unpaginated, multipart (image upload, repeated user ids).
func Centers() *crud.Resource {
	return &crud.Resource{
		Name:     "centers",
		Title:    "Центры",
		Endpoint: api.Centers,
		Shape:    crud.ShapeAll,
		Encoding: crud.EncodeMultipart,
		Fields: []crud.Field{
			{Name: "name", Label: "Название", Kind: crud.KindText, Required: true},
			{Name: "location", Label: "Местоположение", Kind: crud.KindText, Required: true},
			{Name: "description", Label: "Описание", Kind: crud.KindTextarea},
			{Name: "about", Label: "О центре", Kind: crud.KindTextarea},
			{Name: "image", Label: "Изображение", Kind: crud.KindFile},
			{Name: "users", Label: "Пользователи", Kind: crud.KindMultiSelect, Lookup: LookupUsers},
		},
		Columns: []crud.Column{
			{Label: "Название", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("name") }},
			{Label: "Местоположение", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("location") }},
			{Label: "Описание", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("description") }},
			{Label: "О центре", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("about") }},
		},
		Filters: []crud.Filter{
			{Name: "search", Label: "Поиск", Kind: crud.KindText},
			{Name: "location", Label: "Местоположение", Kind: crud.KindText},
		},
		Lookups:   []crud.Lookup{usersLookup(crud.ShapeAll)},
		Creatable: true, Editable: true, Deletable: true,
	}
}

// Sections is the section list. Creates append the server object and edits merge
// locally; neither refetches.
func Sections() *crud.Resource {
	return &crud.Resource{
		Name:     "sections",
		Title:    "Секции",
		Endpoint: api.Sections,
		Shape:    crud.ShapeAll,
		Encoding: crud.EncodeMultipart,
		Fields: []crud.Field{
			{Name: "name", Label: "Название", Kind: crud.KindText, Required: true},
			{Name: "category", Label: "Категория", Kind: crud.KindSelect, Lookup: LookupCategories, Required: true},
			{Name: "center", Label: "Центр", Kind: crud.KindSelect, Lookup: LookupCenters, Required: true},
			{Name: "description", Label: "Описание", Kind: crud.KindTextarea},
			{Name: "image", Label: "Изображение", Kind: crud.KindFile},
			{Name: "weekly_pattern", Label: "Расписание по дням", Kind: crud.KindWeeklyPattern},
		},
		Columns: []crud.Column{
			{Label: "Название", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("name") }},
			{Label: "Категория", Value: func(r crud.Record, lk crud.Lookups) string { return lk.Label(LookupCategories, r["category"]) }},
			{Label: "Центр", Value: func(r crud.Record, lk crud.Lookups) string { return lk.Label(LookupCenters, r["center"]) }},
			{Label: "Описание", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("description") }},
		},
		Lookups: []crud.Lookup{
			{Name: LookupCenters, Endpoint: api.Centers, Shape: crud.ShapeAll, Label: nameOf},
			{Name: LookupCategories, Endpoint: api.Categories, Shape: crud.ShapeAll, Label: nameOf},
		},
		Actions: []crud.Action{
			{
				Name: "add-syllabus", Label: "Добавить силлабус", Method: http.MethodPost,
				Path:   func(string) string { return string(api.GenerateSyllabus) },
				Fields: []crud.Field{{Name: "pdf", Label: "PDF", Kind: crud.KindFile, Required: true}},
				Body: func(r crud.Record, in crud.ActionInput) (api.Body, error) {
					form := api.NewForm()
					for _, f := range in.Files {
						if f.Field == "pdf" {
							form.AddFile(f)
						}
					}
					if len(form.Files()) == 0 {
						return nil, crud.ErrInvalidDraft
					}
					form.Add("section_id", r.ID())
					return form, nil
				},
			},
			{
				Name: "syllabuses", Label: "Силлабусы", Method: http.MethodGet, Shows: true,
				Path: func(id string) string { return api.GetSyllabuses.Item(id) },
			},
		},
		Creatable: true, Editable: true, Deletable: true,
		AfterCreate: crud.AppendResponse,
		AfterEdit:   crud.MergeLocal,
	}
}

// Schedules is the schedule list with the start-meeting transition.
func Schedules() *crud.Resource {
	return &crud.Resource{
		Name:     "schedules",
		Title:    "Расписания",
		Endpoint: api.Schedules,
		Shape:    crud.ShapeAll,
		Encoding: crud.EncodeJSON,
		Fields: []crud.Field{
			{Name: "center", Label: "Центр", Kind: crud.KindSelect, Lookup: LookupCenters, Required: true},
			{Name: "section", Label: "Секция", Kind: crud.KindSelect, Lookup: LookupSections, Required: true},
			{Name: "date", Label: "Дата", Kind: crud.KindDate, Required: true},
			{Name: "start_time", Label: "Начало", Kind: crud.KindTime, Required: true},
			{Name: "end_time", Label: "Конец", Kind: crud.KindTime, Required: true},
			{Name: "capacity", Label: "Вместимость", Kind: crud.KindNumber, Rule: "numeric", Default: json.Number("0")},
		},
		Columns: []crud.Column{
			{Label: "Центр", Value: scheduleCenter},
			{Label: "Секция", Value: func(r crud.Record, lk crud.Lookups) string { return lk.Label(LookupSections, r["section"]) }},
			{Label: "Дата", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("date") }},
			{Label: "Начало", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("start_time") }},
			{Label: "Конец", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("end_time") }},
			{Label: "Вместимость", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("capacity") }},
			{Label: "Зарезервировано", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("reserved") }},
			{Label: "Статус", Value: func(r crud.Record, _ crud.Lookups) string {
				return yesNo(r.String("capacity") == r.String("reserved"), "Full", "Active")
			}},
		},
		Filters: []crud.Filter{
			{Name: "date", Label: "Дата", Kind: crud.KindDate},
			{Name: "center", Label: "Центр", Kind: crud.KindSelect, Lookup: LookupCenters},
			{Name: "section", Label: "Секция", Kind: crud.KindSelect, Lookup: LookupSections},
		},
		Lookups: []crud.Lookup{
			{Name: LookupCenters, Endpoint: api.Centers, Shape: crud.ShapeAll, Label: nameOf},
			{Name: LookupSections, Endpoint: api.Sections, Shape: crud.ShapeAll, Label: nameOf},
		},
		Actions: []crud.Action{{
			Name: "start-meeting", Label: "Начать встречу", Method: http.MethodPost, Refetch: true,
			Path:    func(id string) string { return api.Schedules.Item(id, "start") },
			Visible: func(r crud.Record) bool { return r.String("meeting_link") == "" },
		}},
		Creatable: true, Editable: true, Deletable: true,
	}
}

// scheduleCenter resolves a schedule's center through its section, as schedules only
// reference the section.
func scheduleCenter(r crud.Record, lk crud.Lookups) string {
	if sec, ok := lk[LookupSections].Get(crud.IDOf(r["section"])); ok {
		return lk.Label(LookupCenters, sec["center"])
	}
	if _, has := r["center"]; has {
		return lk.Label(LookupCenters, r["center"])
	}
	return "Не найдено"
}

// Subscriptions is paginated; the IIN filter is resolved to a user id before fetching.
func Subscriptions() *crud.Resource {
	return &crud.Resource{
		Name:     "subscriptions",
		Title:    "Подписки",
		Endpoint: api.Subscriptions,
		Shape:    crud.ShapePaged,
		Encoding: crud.EncodeJSON,
		Fields: []crud.Field{
			{Name: "type", Label: "Тип подписки", Kind: crud.KindSelect, Options: subscriptionTypes, Required: true},
			{Name: "user", Label: "Пользователь", Kind: crud.KindSelect, Lookup: LookupUsers, Required: true},
			{Name: "start_date", Label: "Дата начала", Kind: crud.KindDate, Required: true},
			{Name: "end_date", Label: "Дата окончания", Kind: crud.KindDate, Required: true},
			{Name: "is_active", Label: "Активна", Kind: crud.KindBool},
		},
		Columns: []crud.Column{
			{Label: "Тип подписки", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("type") }},
			{Label: "Пользователь", Value: func(r crud.Record, lk crud.Lookups) string { return lk.Label(LookupUsers, r["user"]) }},
			{Label: "ИИН", Value: func(r crud.Record, lk crud.Lookups) string {
				u, _ := lk[LookupUsers].Get(crud.IDOf(r["user"]))
				return orDefault(u.String("iin"), "N/A")
			}},
			{Label: "Дата начала", Value: func(r crud.Record, _ crud.Lookups) string { return FormatDate(r.String("start_date")) }},
			{Label: "Дата окончания", Value: func(r crud.Record, _ crud.Lookups) string { return FormatDate(r.String("end_date")) }},
			{Label: "Статус", Value: func(r crud.Record, _ crud.Lookups) string {
				return yesNo(r.Bool("is_active"), "Активный", "Неактивный")
			}},
			{Label: "Активирована", Value: func(r crud.Record, _ crud.Lookups) string {
				return yesNo(r.Bool("is_activated_by_admin"), "Да", "Нет")
			}},
		},
		Filters: []crud.Filter{
			{Name: "type", Label: "Тип", Kind: crud.KindSelect, Options: subscriptionTypes},
			{Name: "iin", Label: "ИИН", Kind: crud.KindText},
			{Name: "status", Label: "Статус", Kind: crud.KindSelect, Options: activeStatuses},
		},
		Lookups: []crud.Lookup{usersLookup(crud.ShapePaged)},
		Query:   subscriptionQuery,
		Actions: []crud.Action{{
			Name: "toggle-activation", Label: "Активировать", Method: http.MethodPost, Refetch: true,
			Path: func(id string) string { return api.Subscriptions.Item(id, "activate_subscription") },
			Body: func(r crud.Record, _ crud.ActionInput) (api.Body, error) {
				return api.JSON(map[string]bool{"is_activated_by_admin": !r.Bool("is_activated_by_admin")}), nil
			},
		}},
		Creatable: true, Editable: true, Deletable: true,
	}
}

var subscriptionTypes = []crud.Option{
	{Value: "MONTH", Label: "Месячная"},
	{Value: "6_MONTHS", Label: "Полугодовая"},
	{Value: "YEAR", Label: "Годовая"},
}

var activeStatuses = []crud.Option{
	{Value: "active", Label: "Активный"},
	{Value: "inactive", Label: "Неактивный"},
}

// subscriptionQuery maps type, IIN and status filters to API parameters.
func subscriptionQuery(f crud.Filters, lk crud.Lookups) (url.Values, error) {
	q := url.Values{}
	if t := f["type"]; t != "" {
		q.Set("type", t)
	}
	if iin := strings.TrimSpace(f["iin"]); iin != "" {
		u, ok := lk[LookupUsers].Find(func(r crud.Record) bool { return r.String("iin") == iin })
		if !ok {
			return nil, &crud.NoticeError{Message: MsgIINNotFound}
		}
		q.Set("user", u.ID())
	}
	switch f["status"] {
	case "active":
		q.Set("is_active", "true")
	case "inactive":
		q.Set("is_active", "false")
	}
	return q, nil
}

// Records is the attendance record list.
func Records() *crud.Resource {
	return &crud.Resource{
		Name:     "records",
		Title:    "Записи",
		Endpoint: api.Records,
		Shape:    crud.ShapePaged,
		Encoding: crud.EncodeJSON,
		Fields: []crud.Field{
			{Name: "user", Label: "Пользователь", Kind: crud.KindSelect, Lookup: LookupUsers, Required: true},
			{Name: "schedule", Label: "Расписание", Kind: crud.KindSelect, Lookup: LookupSchedules, Required: true},
			{Name: "subscription", Label: "Подписка", Kind: crud.KindSelect, Lookup: LookupSubscriptions},
			{Name: "attended", Label: "Посещено", Kind: crud.KindBool},
		},
		Columns: []crud.Column{
			{Label: "Пользователь", Value: func(r crud.Record, lk crud.Lookups) string { return lk.Label(LookupUsers, r["user"]) }},
			{Label: "Расписание", Value: func(r crud.Record, lk crud.Lookups) string { return lk.Label(LookupSchedules, r["schedule"]) }},
			{Label: "Подписка", Value: func(r crud.Record, lk crud.Lookups) string { return lk.Label(LookupSubscriptions, r["subscription"]) }},
			{Label: "Посещено", Value: func(r crud.Record, _ crud.Lookups) string { return yesNo(r.Bool("attended"), "Да", "Нет") }},
		},
		Filters: []crud.Filter{
			{Name: "user", Label: "Пользователь", Kind: crud.KindSelect, Lookup: LookupUsers},
			{Name: "schedule", Label: "Расписание", Kind: crud.KindSelect, Lookup: LookupSchedules},
		},
		Lookups: []crud.Lookup{
			usersLookup(crud.ShapePaged),
			{Name: LookupSchedules, Endpoint: api.Schedules, Shape: crud.ShapePaged, Label: scheduleLabel},
			{Name: LookupSubscriptions, Endpoint: api.Subscriptions, Shape: crud.ShapePaged, Label: subscriptionLabel},
		},
		Creatable: true, Editable: true, Deletable: true,
	}
}

func scheduleLabel(r crud.Record) string {
	parts := []string{}
	if sec := r.Nested("section"); sec != nil {
		parts = append(parts, sec.String("name"))
	}
	parts = append(parts, r.String("date"), r.String("start_time"))
	return strings.TrimSpace(strings.Join(parts, " "))
}

func subscriptionLabel(r crud.Record) string {
	return r.String("type") + " #" + r.ID()
}

// Users is paginated and filtered locally. Creating a user registers a staff member.
func Users() *crud.Resource {
	return &crud.Resource{
		Name:     "users",
		Title:    "Пользователи",
		Endpoint: api.Users,
		Shape:    crud.ShapePaged,
		Encoding: crud.EncodeJSON,
		Fields: []crud.Field{
			{Name: "email", Label: "Email", Kind: crud.KindEmail, Required: true},
			{Name: "first_name", Label: "Имя", Kind: crud.KindText, Required: true},
			{Name: "last_name", Label: "Фамилия", Kind: crud.KindText, Required: true},
			{Name: "password", Label: "Пароль", Kind: crud.KindPassword, Required: true, CreateOnly: true},
			{Name: "phone_number", Label: "Телефон", Kind: crud.KindText},
			{Name: "iin", Label: "ИИН", Kind: crud.KindText},
		},
		Columns: []crud.Column{
			{Label: "Имя", Value: func(r crud.Record, _ crud.Lookups) string { return PersonName(r) }},
			{Label: "Email", Value: func(r crud.Record, _ crud.Lookups) string { return orDefault(r.String("email"), "Нет Email") }},
			{Label: "Телефон", Value: func(r crud.Record, _ crud.Lookups) string {
				return orDefault(r.String("phone_number"), "Нет Телефона")
			}},
			{Label: "ИИН", Value: func(r crud.Record, _ crud.Lookups) string { return orDefault(r.String("iin"), "Нет ИИН") }},
			{Label: "Роль", Value: func(r crud.Record, _ crud.Lookups) string { return r.String("role") }},
			{Label: "Статус", Value: func(r crud.Record, _ crud.Lookups) string {
				return yesNo(r.Bool("is_active"), "Активен", "Неактивен")
			}},
		},
		Filters: []crud.Filter{
			{Name: "search", Label: "Поиск", Kind: crud.KindText},
			{Name: "role", Label: "Роль", Kind: crud.KindSelect, Options: roleOptions()},
			{Name: "status", Label: "Статус", Kind: crud.KindSelect, Options: activeStatuses},
		},
		FilterMode: crud.FilterLocal,
		Match:      MatchUser,
		Actions: []crud.Action{
			{
				Name: "activate-deactivate", Label: "Активировать / деактивировать", Method: http.MethodPatch, Refetch: true,
				Path: func(id string) string { return api.Users.Item(id, "activate-deactivate") },
				Body: func(crud.Record, crud.ActionInput) (api.Body, error) { return api.JSON(map[string]any{}), nil },
			},
			{
				Name: "subscriptions", Label: "Подписки", Method: http.MethodGet, Shows: true,
				Path:  func(string) string { return string(api.Subscriptions) },
				Query: func(r crud.Record) url.Values { return url.Values{"user": {r.ID()}} },
			},
		},
		Creatable:            true,
		Deletable:            true,
		CreateEndpoint:       api.CreateStaff,
		CreateExtra:          map[string]any{"role": account.RoleStaff},
		CreateFailureMessage: MsgStaffCreateFailed,
	}
}

func roleOptions() []crud.Option {
	out := make([]crud.Option, 0, len(account.ValidRoles))
	for _, r := range account.ValidRoles {
		out = append(out, crud.Option{Value: r, Label: r})
	}
	return out
}

// MatchUser applies the users screen filters: free-text search over name, email,
// phone and IIN, exact role, and active status.
func MatchUser(r crud.Record, f crud.Filters) bool {
	if s := strings.ToLower(strings.TrimSpace(f["search"])); s != "" {
		hay := []string{
			r.String("first_name") + " " + r.String("last_name"),
			r.String("email"), r.String("phone_number"), r.String("iin"),
		}
		hit := false
		for _, h := range hay {
			if strings.Contains(strings.ToLower(h), s) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if role := f["role"]; role != "" && r.String("role") != role {
		return false
	}
	switch f["status"] {
	case "active":
		return r.Bool("is_active")
	case "inactive":
		return !r.Bool("is_active")
	}
	return true
}
