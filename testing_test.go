package gdao

import (
	"context"
	"sort"
	"sync"
	"testing"
)

// =====================================
// In-Memory Fake Backend
// =====================================

// fakeBackend is an in-memory Backend that counts the queries it
// serves, so tests can assert how many round-trips an operation cost.
type fakeBackend struct {
	mutex   sync.Mutex
	tables  map[string][]Record
	nextID  map[string]int64
	rpcRows []Record

	selectCalls    int
	selectOneCalls int
	insertCalls    int
	updateCalls    int
	deleteCalls    int
	rpcCalls       int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tables: make(map[string][]Record),
		nextID: make(map[string]int64),
	}
}

// seed loads rows directly, bypassing the counters
func (f *fakeBackend) seed(table string, rows ...Record) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, row := range rows {
		f.tables[table] = append(f.tables[table], row.Clone())
		if id, ok := toFloat(row["id"]); ok && int64(id) >= f.nextID[table] {
			f.nextID[table] = int64(id) + 1
		}
	}
}

// reads returns the number of read queries served so far
func (f *fakeBackend) reads() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.selectCalls + f.selectOneCalls
}

func (f *fakeBackend) Select(ctx context.Context, table string, filter Filter, projection []string) ([]Record, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.selectCalls++

	var matched []Record
	for _, row := range f.tables[table] {
		if filter.Matches(row) {
			matched = append(matched, row.Clone())
		}
	}
	sortFakeRows(matched, filter.Order)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	if len(projection) > 0 {
		for i, row := range matched {
			projected := make(Record, len(projection))
			for _, column := range projection {
				if value, ok := row[column]; ok {
					projected[column] = value
				}
			}
			matched[i] = projected
		}
	}
	return matched, nil
}

func (f *fakeBackend) SelectOne(ctx context.Context, table string, filter Filter) (Record, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.selectOneCalls++

	for _, row := range f.tables[table] {
		if filter.Matches(row) {
			return row.Clone(), nil
		}
	}
	return nil, NewError(ErrorTypeNotFound, "record not found").WithTable(table)
}

func (f *fakeBackend) Count(ctx context.Context, table string, filter Filter) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	var count int64
	for _, row := range f.tables[table] {
		if filter.Matches(row) {
			count++
		}
	}
	return count, nil
}

func (f *fakeBackend) Insert(ctx context.Context, table string, row Record) (Record, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.insertCalls++

	stored := row.Clone()
	if _, ok := stored["id"]; !ok {
		if f.nextID[table] == 0 {
			f.nextID[table] = 1
		}
		stored["id"] = f.nextID[table]
		f.nextID[table]++
	}
	f.tables[table] = append(f.tables[table], stored.Clone())
	return stored, nil
}

func (f *fakeBackend) Update(ctx context.Context, table string, row Record, filter Filter) (Record, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.updateCalls++

	var first Record
	for i, existing := range f.tables[table] {
		if !filter.Matches(existing) {
			continue
		}
		merged := existing.Clone()
		for column, value := range row {
			merged[column] = value
		}
		f.tables[table][i] = merged
		if first == nil {
			first = merged.Clone()
		}
	}
	if first == nil {
		return nil, NewError(ErrorTypeNotFound, "record not found").WithTable(table)
	}
	return first, nil
}

func (f *fakeBackend) Delete(ctx context.Context, table string, filter Filter) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.deleteCalls++

	var kept []Record
	for _, row := range f.tables[table] {
		if !filter.Matches(row) {
			kept = append(kept, row)
		}
	}
	f.tables[table] = kept
	return nil
}

func (f *fakeBackend) RPC(ctx context.Context, name string, params map[string]interface{}) ([]Record, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.rpcCalls++

	if f.rpcRows == nil {
		return nil, NewError(ErrorTypeUnsupported, "rpc not configured")
	}
	return f.rpcRows, nil
}

func (f *fakeBackend) Info() BackendInfo {
	return BackendInfo{Name: "fake", DatabaseType: DatabaseTypeKV}
}

func (f *fakeBackend) Health() error { return nil }
func (f *fakeBackend) Close() error  { return nil }

func sortFakeRows(rows []Record, orders []Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, order := range orders {
			a, aok := toFloat(rows[i][order.Field])
			b, bok := toFloat(rows[j][order.Field])
			if !aok || !bok || a == b {
				continue
			}
			if order.Direction == OrderDesc {
				return a > b
			}
			return a < b
		}
		return false
	})
}

// =====================================
// Test Entities and Mappers
// =====================================

type Company struct {
	ID   int64
	Name string
}

type User struct {
	ID        int64
	Name      string
	Email     string
	CompanyID *int64

	Company *Company
	Posts   []*Post
	Profile *Profile
}

type Post struct {
	ID         int64
	UserID     int64
	Title      string
	CategoryID *int64

	Category *Category
	Tags     []*Tag
}

type Category struct {
	ID   int64
	Name string
}

type Profile struct {
	ID     int64
	UserID int64
	Bio    string
}

type Tag struct {
	ID   int64
	Name string
}

func asInt64(v interface{}) (int64, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

type companyMapper struct{}

func (companyMapper) Table() string { return "companies" }

func (companyMapper) Columns() []Column {
	return []Column{
		{Name: "id", PrimaryKey: true, OmitInsert: true},
		{Name: "name"},
	}
}

func (companyMapper) ToRecord(c *Company) (Record, error) {
	return Record{"id": c.ID, "name": c.Name}, nil
}

func (companyMapper) FromRecord(rec Record) (*Company, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return nil, NewError(ErrorTypeMapping, "companies row missing id")
	}
	return &Company{ID: id, Name: asString(rec["name"])}, nil
}

func (companyMapper) PrimaryKey(c *Company) (interface{}, error) {
	if c.ID == 0 {
		return nil, NewError(ErrorTypeIllegalState, "company has no id").WithTable("companies")
	}
	return c.ID, nil
}

func (companyMapper) GetField(c *Company, name string) (interface{}, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "name":
		return c.Name, true
	}
	return nil, false
}

func (companyMapper) SetField(c *Company, name string, value interface{}) error {
	switch name {
	case "name":
		c.Name = asString(value)
		return nil
	}
	return NewError(ErrorTypeMapping, "unknown field: "+name).WithTable("companies")
}

type userMapper struct{}

func (userMapper) Table() string { return "users" }

func (userMapper) Columns() []Column {
	return []Column{
		{Name: "id", PrimaryKey: true, OmitInsert: true},
		{Name: "name"},
		{Name: "email"},
		{Name: "company_id"},
	}
}

func (userMapper) ToRecord(u *User) (Record, error) {
	rec := Record{"id": u.ID, "name": u.Name, "email": u.Email, "company_id": nil}
	if u.CompanyID != nil {
		rec["company_id"] = *u.CompanyID
	}
	return rec, nil
}

func (userMapper) FromRecord(rec Record) (*User, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return nil, NewError(ErrorTypeMapping, "users row missing id")
	}
	u := &User{ID: id, Name: asString(rec["name"]), Email: asString(rec["email"])}
	if companyID, ok := asInt64(rec["company_id"]); ok {
		u.CompanyID = &companyID
	}
	return u, nil
}

func (userMapper) PrimaryKey(u *User) (interface{}, error) {
	if u.ID == 0 {
		return nil, NewError(ErrorTypeIllegalState, "user has no id").WithTable("users")
	}
	return u.ID, nil
}

func (userMapper) GetField(u *User, name string) (interface{}, bool) {
	switch name {
	case "id":
		return u.ID, true
	case "name":
		return u.Name, true
	case "email":
		return u.Email, true
	case "company_id":
		if u.CompanyID == nil {
			return nil, true
		}
		return *u.CompanyID, true
	case "company":
		if u.Company == nil {
			return nil, true
		}
		return u.Company, true
	case "posts":
		return u.Posts, true
	case "profile":
		if u.Profile == nil {
			return nil, true
		}
		return u.Profile, true
	}
	return nil, false
}

func (userMapper) SetField(u *User, name string, value interface{}) error {
	switch name {
	case "name":
		u.Name = asString(value)
	case "email":
		u.Email = asString(value)
	case "company":
		company, ok := value.(*Company)
		if !ok {
			return NewError(ErrorTypeMapping, "company field expects *Company").WithTable("users")
		}
		u.Company = company
	case "posts":
		items, ok := value.([]interface{})
		if !ok {
			return NewError(ErrorTypeMapping, "posts field expects a slice").WithTable("users")
		}
		posts := make([]*Post, 0, len(items))
		for _, item := range items {
			if post, ok := item.(*Post); ok {
				posts = append(posts, post)
			}
		}
		u.Posts = posts
	case "profile":
		profile, ok := value.(*Profile)
		if !ok {
			return NewError(ErrorTypeMapping, "profile field expects *Profile").WithTable("users")
		}
		u.Profile = profile
	default:
		return NewError(ErrorTypeMapping, "unknown field: "+name).WithTable("users")
	}
	return nil
}

type postMapper struct{}

func (postMapper) Table() string { return "posts" }

func (postMapper) Columns() []Column {
	return []Column{
		{Name: "id", PrimaryKey: true, OmitInsert: true},
		{Name: "user_id"},
		{Name: "title"},
		{Name: "category_id"},
	}
}

func (postMapper) ToRecord(p *Post) (Record, error) {
	rec := Record{"id": p.ID, "user_id": p.UserID, "title": p.Title, "category_id": nil}
	if p.CategoryID != nil {
		rec["category_id"] = *p.CategoryID
	}
	return rec, nil
}

func (postMapper) FromRecord(rec Record) (*Post, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return nil, NewError(ErrorTypeMapping, "posts row missing id")
	}
	userID, _ := asInt64(rec["user_id"])
	p := &Post{ID: id, UserID: userID, Title: asString(rec["title"])}
	if categoryID, ok := asInt64(rec["category_id"]); ok {
		p.CategoryID = &categoryID
	}
	return p, nil
}

func (postMapper) PrimaryKey(p *Post) (interface{}, error) {
	if p.ID == 0 {
		return nil, NewError(ErrorTypeIllegalState, "post has no id").WithTable("posts")
	}
	return p.ID, nil
}

func (postMapper) GetField(p *Post, name string) (interface{}, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "user_id":
		return p.UserID, true
	case "title":
		return p.Title, true
	case "category_id":
		if p.CategoryID == nil {
			return nil, true
		}
		return *p.CategoryID, true
	case "category":
		if p.Category == nil {
			return nil, true
		}
		return p.Category, true
	case "tags":
		return p.Tags, true
	}
	return nil, false
}

func (postMapper) SetField(p *Post, name string, value interface{}) error {
	switch name {
	case "title":
		p.Title = asString(value)
	case "category":
		category, ok := value.(*Category)
		if !ok {
			return NewError(ErrorTypeMapping, "category field expects *Category").WithTable("posts")
		}
		p.Category = category
	case "tags":
		items, ok := value.([]interface{})
		if !ok {
			return NewError(ErrorTypeMapping, "tags field expects a slice").WithTable("posts")
		}
		tags := make([]*Tag, 0, len(items))
		for _, item := range items {
			if tag, ok := item.(*Tag); ok {
				tags = append(tags, tag)
			}
		}
		p.Tags = tags
	default:
		return NewError(ErrorTypeMapping, "unknown field: "+name).WithTable("posts")
	}
	return nil
}

type categoryMapper struct{}

func (categoryMapper) Table() string { return "categories" }

func (categoryMapper) Columns() []Column {
	return []Column{
		{Name: "id", PrimaryKey: true, OmitInsert: true},
		{Name: "name"},
	}
}

func (categoryMapper) ToRecord(c *Category) (Record, error) {
	return Record{"id": c.ID, "name": c.Name}, nil
}

func (categoryMapper) FromRecord(rec Record) (*Category, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return nil, NewError(ErrorTypeMapping, "categories row missing id")
	}
	return &Category{ID: id, Name: asString(rec["name"])}, nil
}

func (categoryMapper) PrimaryKey(c *Category) (interface{}, error) {
	if c.ID == 0 {
		return nil, NewError(ErrorTypeIllegalState, "category has no id").WithTable("categories")
	}
	return c.ID, nil
}

func (categoryMapper) GetField(c *Category, name string) (interface{}, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "name":
		return c.Name, true
	}
	return nil, false
}

func (categoryMapper) SetField(c *Category, name string, value interface{}) error {
	switch name {
	case "name":
		c.Name = asString(value)
		return nil
	}
	return NewError(ErrorTypeMapping, "unknown field: "+name).WithTable("categories")
}

type profileMapper struct{}

func (profileMapper) Table() string { return "profiles" }

func (profileMapper) Columns() []Column {
	return []Column{
		{Name: "id", PrimaryKey: true, OmitInsert: true},
		{Name: "user_id"},
		{Name: "bio"},
	}
}

func (profileMapper) ToRecord(p *Profile) (Record, error) {
	return Record{"id": p.ID, "user_id": p.UserID, "bio": p.Bio}, nil
}

func (profileMapper) FromRecord(rec Record) (*Profile, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return nil, NewError(ErrorTypeMapping, "profiles row missing id")
	}
	userID, _ := asInt64(rec["user_id"])
	return &Profile{ID: id, UserID: userID, Bio: asString(rec["bio"])}, nil
}

func (profileMapper) PrimaryKey(p *Profile) (interface{}, error) {
	if p.ID == 0 {
		return nil, NewError(ErrorTypeIllegalState, "profile has no id").WithTable("profiles")
	}
	return p.ID, nil
}

func (profileMapper) GetField(p *Profile, name string) (interface{}, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "user_id":
		return p.UserID, true
	case "bio":
		return p.Bio, true
	}
	return nil, false
}

func (profileMapper) SetField(p *Profile, name string, value interface{}) error {
	switch name {
	case "bio":
		p.Bio = asString(value)
		return nil
	}
	return NewError(ErrorTypeMapping, "unknown field: "+name).WithTable("profiles")
}

type tagMapper struct{}

func (tagMapper) Table() string { return "tags" }

func (tagMapper) Columns() []Column {
	return []Column{
		{Name: "id", PrimaryKey: true, OmitInsert: true},
		{Name: "name"},
	}
}

func (tagMapper) ToRecord(tag *Tag) (Record, error) {
	return Record{"id": tag.ID, "name": tag.Name}, nil
}

func (tagMapper) FromRecord(rec Record) (*Tag, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return nil, NewError(ErrorTypeMapping, "tags row missing id")
	}
	return &Tag{ID: id, Name: asString(rec["name"])}, nil
}

func (tagMapper) PrimaryKey(tag *Tag) (interface{}, error) {
	if tag.ID == 0 {
		return nil, NewError(ErrorTypeIllegalState, "tag has no id").WithTable("tags")
	}
	return tag.ID, nil
}

func (tagMapper) GetField(tag *Tag, name string) (interface{}, bool) {
	switch name {
	case "id":
		return tag.ID, true
	case "name":
		return tag.Name, true
	}
	return nil, false
}

func (tagMapper) SetField(tag *Tag, name string, value interface{}) error {
	switch name {
	case "name":
		tag.Name = asString(value)
		return nil
	}
	return NewError(ErrorTypeMapping, "unknown field: "+name).WithTable("tags")
}

// =====================================
// Test Environment
// =====================================

type testEnv struct {
	backend  *fakeBackend
	registry *DAORegistry

	users      *DAO[User]
	companies  *DAO[Company]
	posts      *DAO[Post]
	categories *DAO[Category]
	profiles   *DAO[Profile]
	tags       *DAO[Tag]
}

func ptr(v int64) *int64 { return &v }

// newTestEnv wires DAOs for the full test entity graph over a fresh
// fake backend and an isolated registry, and seeds:
//
//	companies 1-2; users 1-3 (user 3 has no company);
//	posts 1-2 by user 1, post 3 by user 2 (post 2 has no category);
//	categories 10-11; profile for user 1 only;
//	tags 1-3; post_tags links post 1 -> tags 1,2 and post 3 -> tag 2.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := newFakeBackend()
	registry := NewRegistry()

	env := &testEnv{backend: backend, registry: registry}

	env.companies = New[Company](backend, companyMapper{}, WithRegistry[Company](registry))
	env.categories = New[Category](backend, categoryMapper{}, WithRegistry[Category](registry))
	env.profiles = New[Profile](backend, profileMapper{}, WithRegistry[Profile](registry))
	env.tags = New[Tag](backend, tagMapper{}, WithRegistry[Tag](registry))
	env.posts = New[Post](backend, postMapper{}, WithRegistry[Post](registry), WithRelations[Post](
		BelongsToRelation[Category]("category", "category_id"),
		ManyToManyRelation[Tag]("tags", "post_tags", "post_id", "tag_id"),
	))
	env.users = New[User](backend, userMapper{}, WithRegistry[User](registry), WithRelations[User](
		BelongsToRelation[Company]("company", "company_id"),
		HasManyRelation[Post]("posts", "user_id"),
		HasOneRelation[Profile]("profile", "user_id"),
	))

	Register(env.companies)
	Register(env.categories)
	Register(env.profiles)
	Register(env.tags)
	Register(env.posts)
	Register(env.users)

	backend.seed("companies",
		Record{"id": int64(1), "name": "Acme"},
		Record{"id": int64(2), "name": "Globex"},
	)
	backend.seed("users",
		Record{"id": int64(1), "name": "Alice", "email": "alice@example.com", "company_id": int64(1)},
		Record{"id": int64(2), "name": "Bob", "email": "bob@example.com", "company_id": int64(1)},
		Record{"id": int64(3), "name": "Carol", "email": "carol@example.com", "company_id": nil},
	)
	backend.seed("categories",
		Record{"id": int64(10), "name": "go"},
		Record{"id": int64(11), "name": "databases"},
	)
	backend.seed("posts",
		Record{"id": int64(1), "user_id": int64(1), "title": "first", "category_id": int64(10)},
		Record{"id": int64(2), "user_id": int64(1), "title": "second", "category_id": nil},
		Record{"id": int64(3), "user_id": int64(2), "title": "third", "category_id": int64(11)},
	)
	backend.seed("profiles",
		Record{"id": int64(1), "user_id": int64(1), "bio": "gopher"},
	)
	backend.seed("tags",
		Record{"id": int64(1), "name": "tutorial"},
		Record{"id": int64(2), "name": "release"},
		Record{"id": int64(3), "name": "unused"},
	)
	backend.seed("post_tags",
		Record{"id": int64(1), "post_id": int64(1), "tag_id": int64(1)},
		Record{"id": int64(2), "post_id": int64(1), "tag_id": int64(2)},
		Record{"id": int64(3), "post_id": int64(3), "tag_id": int64(2)},
	)

	return env
}
