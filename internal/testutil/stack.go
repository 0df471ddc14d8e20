package testutil

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/config"
	"github.com/smallbiznis/millroll/internal/erp/erptest"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	inputrollrepo "github.com/smallbiznis/millroll/internal/inputroll/repository"
	inputrollservice "github.com/smallbiznis/millroll/internal/inputroll/service"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	jobrepo "github.com/smallbiznis/millroll/internal/job/repository"
	jobservice "github.com/smallbiznis/millroll/internal/job/service"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	machinerepo "github.com/smallbiznis/millroll/internal/machine/repository"
	machineservice "github.com/smallbiznis/millroll/internal/machine/service"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	outputrollrepo "github.com/smallbiznis/millroll/internal/outputroll/repository"
	outputrollservice "github.com/smallbiznis/millroll/internal/outputroll/service"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	postingrepo "github.com/smallbiznis/millroll/internal/posting/repository"
	postingservice "github.com/smallbiznis/millroll/internal/posting/service"
	"github.com/smallbiznis/millroll/internal/provenance"
	"github.com/smallbiznis/millroll/internal/sequence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Plant is UTC+7.
var PlantZone = time.FixedZone("WIB", 7*60*60)

// Stack wires every service against one test database, a fake clock and a
// mocked ERP client.
type Stack struct {
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock *clock.FakeClock
	Plant *config.PlantConfigHolder
	ERP   *erptest.Client

	JobRepo jobdomain.Repository

	Machines    machinedomain.Service
	Postings    postingdomain.Service
	InputRolls  inputrolldomain.Service
	Jobs        jobdomain.Service
	OutputRolls outputrolldomain.Service
}

func NewStack(t *testing.T, now time.Time) *Stack {
	t.Helper()

	s := &Stack{
		DB:      OpenDB(t),
		Node:    Node(t),
		Clock:   clock.NewFakeClock(now.In(PlantZone)),
		Plant:   Plant(2),
		ERP:     &erptest.Client{},
		JobRepo: jobrepo.Provide(),
	}
	log := zap.NewNop()

	s.Machines = machineservice.New(machineservice.Params{
		DB:   s.DB,
		Log:  log,
		Repo: machinerepo.Provide(),
	})
	s.Postings = postingservice.New(postingservice.Params{
		DB:    s.DB,
		Log:   log,
		GenID: s.Node,
		Clock: s.Clock,
		Repo:  postingrepo.Provide(),
	})
	s.InputRolls = inputrollservice.New(inputrollservice.Params{
		DB:      s.DB,
		Log:     log,
		GenID:   s.Node,
		Clock:   s.Clock,
		Repo:    inputrollrepo.Provide(),
		JobRepo: s.JobRepo,
		Posting: s.Postings,
		ERP:     s.ERP,
	})
	s.Jobs = jobservice.New(jobservice.Params{
		DB:         s.DB,
		Log:        log,
		GenID:      s.Node,
		Clock:      s.Clock,
		Plant:      s.Plant,
		Repo:       s.JobRepo,
		Machines:   s.Machines,
		InputRolls: s.InputRolls,
	})
	s.OutputRolls = outputrollservice.New(outputrollservice.Params{
		DB:         s.DB,
		Log:        log,
		GenID:      s.Node,
		Clock:      s.Clock,
		Plant:      s.Plant,
		Repo:       outputrollrepo.Provide(),
		JobRepo:    s.JobRepo,
		InputRolls: s.InputRolls,
		Machines:   s.Machines,
		Resolver:   provenance.NewResolver(log, s.InputRolls, provenance.NewHistory()),
		Allocator:  sequence.NewAllocator(),
		Locker:     sequence.NewLocalLocker(),
		Posting:    s.Postings,
		ERP:        s.ERP,
	})
	return s
}
