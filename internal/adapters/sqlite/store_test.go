package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
	"github.com/atvirokodosprendimai/tenantsync/migrations"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gormsqlite.DB {
	t.Helper()
	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "tenantsync.sqlite"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if _, err := migrations.Up(context.Background(), wdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func openTestStore(t *testing.T, tenants ...string) *Store {
	t.Helper()
	store := NewStore(openTestDB(t))
	store.now = func() time.Time { return testNow }
	for _, id := range tenants {
		if _, err := store.CreateTenant(context.Background(), domain.Tenant{ID: id, Name: id, Active: true}); err != nil {
			t.Fatalf("create tenant %s: %v", id, err)
		}
	}
	return store
}

func actor(tenantID, userID string) *domain.ActorContext {
	return &domain.ActorContext{TenantID: tenantID, UserID: userID}
}

func mustScope(t *testing.T, store *Store, tenantID string) ports.TenantScope {
	t.Helper()
	scope, err := store.OpenTenantScope(tenantID, actor(tenantID, "admin"))
	if err != nil {
		t.Fatalf("open scope %s: %v", tenantID, err)
	}
	return scope
}

func mustWrite(t *testing.T, scope ports.TenantScope, fn func(tx ports.ScopedTx) error) {
	t.Helper()
	if err := scope.Write(context.Background(), fn); err != nil {
		t.Fatalf("write in %s: %v", scope.TenantID(), err)
	}
}

// seedTenant creates a member, a project with a task, a project membership,
// a link and an activity record, all in one tenant. It returns the project id.
func seedTenant(t *testing.T, store *Store, tenantID string) string {
	t.Helper()
	var projectID string
	mustWrite(t, mustScope(t, store, tenantID), func(tx ports.ScopedTx) error {
		if _, err := tx.CreateMember(domain.Member{UserID: "u1", Email: "u1@" + tenantID, Role: domain.RoleWorker}); err != nil {
			return err
		}
		p, err := tx.CreateProject(domain.Project{Name: "Project " + tenantID})
		if err != nil {
			return err
		}
		projectID = p.ID
		if _, err := tx.AddProjectMember(p.ID, "u1"); err != nil {
			return err
		}
		if _, err := tx.CreateTask(domain.Task{ProjectID: p.ID, Title: "task"}); err != nil {
			return err
		}
		if _, err := tx.LinkAccount(domain.ExternalLink{UserID: "u1", Provider: "chat", ExternalID: "ext-" + tenantID}); err != nil {
			return err
		}
		_, err = tx.AppendActivity(domain.ActivityRecord{
			ActorUserID: "admin",
			Action:      domain.ActionCreated,
			EntityType:  domain.EntityProject,
			EntityID:    p.ID,
			ProjectID:   p.ID,
		})
		return err
	})
	return projectID
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := openTestDB(t)
	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	applied, err := migrations.Up(context.Background(), wdb)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no pending migrations, got %d", applied)
	}
	version, err := migrations.Version(context.Background(), wdb)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected schema version 2, got %d", version)
	}
}

func TestScopedReadsNeverReturnOtherTenantsRows(t *testing.T) {
	store := openTestStore(t, "t1", "t2")
	p1 := seedTenant(t, store, "t1")
	p2 := seedTenant(t, store, "t2")

	for _, tc := range []struct {
		tenant, own, foreign string
	}{
		{"t1", p1, p2},
		{"t2", p2, p1},
	} {
		scope := mustScope(t, store, tc.tenant)
		err := scope.Read(context.Background(), func(tx ports.ScopedTx) error {
			members, err := tx.ListMembers(false)
			if err != nil {
				return err
			}
			for _, m := range members {
				if m.TenantID != tc.tenant {
					t.Errorf("member of %s leaked into %s", m.TenantID, tc.tenant)
				}
			}
			projects, err := tx.ListProjects()
			if err != nil {
				return err
			}
			if len(projects) != 1 || projects[0].ID != tc.own {
				t.Errorf("unexpected projects in %s: %+v", tc.tenant, projects)
			}
			tasks, err := tx.ListTasks(tc.own)
			if err != nil {
				return err
			}
			for _, task := range tasks {
				if task.TenantID != tc.tenant {
					t.Errorf("task of %s leaked into %s", task.TenantID, tc.tenant)
				}
			}
			links, err := tx.ListLinks("")
			if err != nil {
				return err
			}
			if len(links) != 1 || links[0].TenantID != tc.tenant {
				t.Errorf("unexpected links in %s: %+v", tc.tenant, links)
			}
			activity, err := tx.ListActivity(domain.ActivityFilter{})
			if err != nil {
				return err
			}
			if len(activity) != 1 || activity[0].TenantID != tc.tenant {
				t.Errorf("unexpected activity in %s: %+v", tc.tenant, activity)
			}

			if _, err := tx.GetProject(tc.foreign); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("foreign project read: expected not found, got %v", err)
			}
			if _, err := tx.ListTasks(tc.foreign); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("foreign task list: expected not found, got %v", err)
			}
			member, err := tx.IsProjectMember(tc.foreign, "u1")
			if err != nil {
				return err
			}
			if member {
				t.Errorf("membership of foreign project visible in %s", tc.tenant)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", tc.tenant, err)
		}
	}
}

func TestCrossTenantWriteIsDistinctFromNotFound(t *testing.T) {
	store := openTestStore(t, "t1", "t2")
	seedTenant(t, store, "t1")
	p2 := seedTenant(t, store, "t2")
	scope := mustScope(t, store, "t1")

	err := scope.Write(context.Background(), func(tx ports.ScopedTx) error {
		_, err := tx.UpdateProject(domain.Project{ID: p2, Name: "hijack"})
		return err
	})
	if !errors.Is(err, domain.ErrCrossTenantWrite) {
		t.Fatalf("expected cross tenant write, got %v", err)
	}
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("cross tenant write should be an access denial, got %v", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross tenant write must not read as not found")
	}

	err = scope.Write(context.Background(), func(tx ports.ScopedTx) error {
		_, err := tx.DeleteProject("missing")
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	err = scope.Write(context.Background(), func(tx ports.ScopedTx) error {
		_, err := tx.CreateProject(domain.Project{TenantID: "t2", Name: "stamped elsewhere"})
		return err
	})
	if !errors.Is(err, domain.ErrCrossTenantWrite) {
		t.Fatalf("expected cross tenant write on foreign create, got %v", err)
	}

	err = mustScope(t, store, "t2").Read(context.Background(), func(tx ports.ScopedTx) error {
		p, err := tx.GetProject(p2)
		if err != nil {
			return err
		}
		if p.Name != "Project t2" {
			t.Errorf("foreign project was modified: %+v", p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read t2: %v", err)
	}
}

func TestWriteErrorRollsBackActivity(t *testing.T) {
	store := openTestStore(t, "t1")
	scope := mustScope(t, store, "t1")
	boom := errors.New("boom")

	err := scope.Write(context.Background(), func(tx ports.ScopedTx) error {
		p, err := tx.CreateProject(domain.Project{Name: "doomed"})
		if err != nil {
			return err
		}
		if _, err := tx.AppendActivity(domain.ActivityRecord{
			ActorUserID: "admin", Action: domain.ActionCreated, EntityType: domain.EntityProject, EntityID: p.ID,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = scope.Read(context.Background(), func(tx ports.ScopedTx) error {
		projects, err := tx.ListProjects()
		if err != nil {
			return err
		}
		activity, err := tx.ListActivity(domain.ActivityFilter{})
		if err != nil {
			return err
		}
		if len(projects) != 0 || len(activity) != 0 {
			t.Errorf("rollback left %d projects and %d activity records", len(projects), len(activity))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestActivityFailureRollsBackMutation(t *testing.T) {
	store := openTestStore(t, "t1")
	wdb, err := store.db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if _, err := wdb.ExecContext(context.Background(), `
		CREATE TRIGGER trg_fail_activity_insert
		BEFORE INSERT ON activity_records
		BEGIN
			SELECT RAISE(ABORT, 'forced activity failure');
		END;
	`); err != nil {
		t.Fatalf("create failure trigger: %v", err)
	}

	scope := mustScope(t, store, "t1")
	err = scope.Write(context.Background(), func(tx ports.ScopedTx) error {
		p, err := tx.CreateProject(domain.Project{Name: "unaudited"})
		if err != nil {
			return err
		}
		_, err = tx.AppendActivity(domain.ActivityRecord{
			ActorUserID: "admin", Action: domain.ActionCreated, EntityType: domain.EntityProject, EntityID: p.ID,
		})
		return err
	})
	if err == nil {
		t.Fatalf("expected activity failure")
	}

	err = scope.Read(context.Background(), func(tx ports.ScopedTx) error {
		projects, err := tx.ListProjects()
		if err != nil {
			return err
		}
		if len(projects) != 0 {
			t.Errorf("mutation persisted without its activity record: %+v", projects)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestOpenTenantScopeValidatesTenantAndActor(t *testing.T) {
	store := openTestStore(t, "t1")

	_, err := store.OpenTenantScope("", nil)
	if !errors.Is(err, domain.ErrTenantIDRequired) {
		t.Fatalf("expected tenant id required, got %v", err)
	}
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("tenant id required should be a validation failure, got %v", err)
	}

	_, err = store.OpenTenantScope("t1", actor("t2", "u1"))
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected access denied for foreign actor, got %v", err)
	}

	scope, err := store.OpenTenantScope("t1", nil)
	if err != nil {
		t.Fatalf("system scope: %v", err)
	}
	if _, ok := scope.Actor(); ok {
		t.Fatalf("system scope should carry no actor")
	}
}

func TestDisabledTenantRejectsWrites(t *testing.T) {
	store := openTestStore(t, "t1")
	if err := store.SetTenantActive(context.Background(), "t1", false); err != nil {
		t.Fatalf("disable tenant: %v", err)
	}
	err := mustScope(t, store, "t1").Write(context.Background(), func(tx ports.ScopedTx) error {
		_, err := tx.CreateProject(domain.Project{Name: "late"})
		return err
	})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}

	tenants, err := store.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("list tenants: %v", err)
	}
	if len(tenants) != 1 || tenants[0].Active {
		t.Fatalf("expected the disabled tenant to be listed as inactive: %+v", tenants)
	}
}

func TestMemberRoleChangeReturnsPrevious(t *testing.T) {
	store := openTestStore(t, "t1")
	seedTenant(t, store, "t1")

	mustWrite(t, mustScope(t, store, "t1"), func(tx ports.ScopedTx) error {
		prev, err := tx.SetMemberRole("u1", domain.RoleManager)
		if err != nil {
			return err
		}
		if prev != domain.RoleWorker {
			t.Errorf("expected previous WORKER, got %s", prev)
		}
		if err := tx.DeactivateMember("u1"); err != nil {
			return err
		}
		m, err := tx.GetMember("u1")
		if err != nil {
			return err
		}
		if m.Role != domain.RoleManager || m.Active {
			t.Errorf("unexpected member state: %+v", m)
		}
		if _, err := tx.SetMemberRole("ghost", domain.RoleAdmin); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found for unknown member, got %v", err)
		}
		return nil
	})
}

func TestUserScopeFiltersByOwner(t *testing.T) {
	store := openTestStore(t, "t1")
	ctx := context.Background()

	var foreignDoc string
	for _, owner := range []string{"u1", "u2"} {
		scope, err := store.OpenUserScope("t1", owner, actor("t1", owner))
		if err != nil {
			t.Fatalf("open user scope: %v", err)
		}
		err = scope.Write(ctx, func(tx ports.PersonalTx) error {
			d, err := tx.CreateDocument(domain.Document{Name: owner + ".pdf", ContentType: "application/pdf", SizeBytes: 10})
			if owner == "u2" {
				foreignDoc = d.ID
			}
			return err
		})
		if err != nil {
			t.Fatalf("create document for %s: %v", owner, err)
		}
	}

	scope, err := store.OpenUserScope("t1", "u1", actor("t1", "u1"))
	if err != nil {
		t.Fatalf("open user scope: %v", err)
	}
	err = scope.Read(ctx, func(tx ports.PersonalTx) error {
		docs, err := tx.ListDocuments()
		if err != nil {
			return err
		}
		if len(docs) != 1 || docs[0].UploadedBy != "u1" {
			t.Errorf("unexpected documents: %+v", docs)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	err = scope.Write(ctx, func(tx ports.PersonalTx) error {
		_, err := tx.DeleteDocument(foreignDoc)
		return err
	})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected access denied deleting another member's document, got %v", err)
	}
}

func TestLinkAccountRejectsIdentityTakenElsewhere(t *testing.T) {
	store := openTestStore(t, "t1", "t2")
	seedTenant(t, store, "t1")
	seedTenant(t, store, "t2")

	err := mustScope(t, store, "t2").Write(context.Background(), func(tx ports.ScopedTx) error {
		_, err := tx.LinkAccount(domain.ExternalLink{UserID: "u1", Provider: "chat", ExternalID: "ext-t1"})
		return err
	})
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	mustWrite(t, mustScope(t, store, "t1"), func(tx ports.ScopedTx) error {
		relinked, err := tx.LinkAccount(domain.ExternalLink{UserID: "u1", Provider: "chat", ExternalID: "ext-new"})
		if err != nil {
			return err
		}
		if relinked.ExternalID != "ext-new" {
			t.Errorf("relink did not replace external id: %+v", relinked)
		}
		removed, err := tx.UnlinkAccount("u1", "chat")
		if err != nil {
			return err
		}
		if removed.ExternalID != "ext-new" {
			t.Errorf("unexpected removed link: %+v", removed)
		}
		if _, err := tx.UnlinkAccount("u1", "chat"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found on second unlink, got %v", err)
		}
		return nil
	})
}

func TestCreateWithTakenIDIsRejected(t *testing.T) {
	store := openTestStore(t, "t1", "t2")
	p1 := seedTenant(t, store, "t1")
	seedTenant(t, store, "t2")

	err := mustScope(t, store, "t2").Write(context.Background(), func(tx ports.ScopedTx) error {
		_, err := tx.CreateProject(domain.Project{ID: p1, Name: "squatter"})
		return err
	})
	if !errors.Is(err, domain.ErrCrossTenantWrite) {
		t.Fatalf("expected cross tenant write for id owned elsewhere, got %v", err)
	}

	err = mustScope(t, store, "t1").Write(context.Background(), func(tx ports.ScopedTx) error {
		_, err := tx.CreateProject(domain.Project{ID: p1, Name: "again"})
		return err
	})
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation failure for existing id, got %v", err)
	}

	var taskID string
	mustWrite(t, mustScope(t, store, "t1"), func(tx ports.ScopedTx) error {
		task, err := tx.CreateTask(domain.Task{ID: "task-fixed", ProjectID: p1, Title: "fixed id"})
		taskID = task.ID
		return err
	})
	err = mustScope(t, store, "t1").Write(context.Background(), func(tx ports.ScopedTx) error {
		_, err := tx.CreateTask(domain.Task{ID: taskID, ProjectID: p1, Title: "duplicate"})
		return err
	})
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation failure for existing task id, got %v", err)
	}
}

func TestDroppedLinksArePendingRevocation(t *testing.T) {
	store := openTestStore(t, "t1", "t2")
	seedTenant(t, store, "t1")
	seedTenant(t, store, "t2")

	pending := func(tenantID string) []domain.ExternalLink {
		t.Helper()
		var out []domain.ExternalLink
		err := mustScope(t, store, tenantID).Read(context.Background(), func(tx ports.ScopedTx) error {
			var err error
			out, err = tx.ListPendingRevocations()
			return err
		})
		if err != nil {
			t.Fatalf("list pending revocations: %v", err)
		}
		return out
	}

	mustWrite(t, mustScope(t, store, "t1"), func(tx ports.ScopedTx) error {
		_, err := tx.LinkAccount(domain.ExternalLink{UserID: "u1", Provider: "chat", ExternalID: "ext-t1-new"})
		return err
	})
	got := pending("t1")
	if len(got) != 1 || got[0].ExternalID != "ext-t1" || got[0].UserID != "u1" {
		t.Fatalf("expected replaced identity to be pending, got %+v", got)
	}
	if other := pending("t2"); len(other) != 0 {
		t.Fatalf("pending revocations leaked into t2: %+v", other)
	}

	mustWrite(t, mustScope(t, store, "t1"), func(tx ports.ScopedTx) error {
		_, err := tx.UnlinkAccount("u1", "chat")
		return err
	})
	if got := pending("t1"); len(got) != 2 {
		t.Fatalf("expected both dropped identities pending, got %+v", got)
	}

	mustWrite(t, mustScope(t, store, "t1"), func(tx ports.ScopedTx) error {
		if _, err := tx.LinkAccount(domain.ExternalLink{UserID: "u1", Provider: "chat", ExternalID: "ext-t1"}); err != nil {
			return err
		}
		return tx.ClearPendingRevocation("chat", "ext-t1-new")
	})
	if got := pending("t1"); len(got) != 0 {
		t.Fatalf("relink and clear should leave nothing pending, got %+v", got)
	}
}
