package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

var sampleComponents = []Component{
	{Name: "WebFrontend", Technology: "React", Layer: LayerPresentation, DependsOn: []string{"CoreService"}},
	{Name: "CoreService", Technology: "Go", Layer: LayerApplication, DependsOn: []string{"Database", "ERP"}},
	{Name: "Database", Technology: "PostgreSQL", Layer: LayerData},
	{Name: "ERP", Technology: "SAP (S/4)", Layer: LayerIntegration},
}

func TestSystemDiagram(t *testing.T) {
	want := `graph TD
    WebFrontend[WebFrontend<br/>React]
    CoreService(CoreService<br/>Go)
    Database[(Database<br/>PostgreSQL)]
    ERP{{ERP<br/>SAP S/4}}
    WebFrontend --> CoreService
    CoreService --> Database
    CoreService --> ERP`
	assert.Equal(t, want, SystemDiagram(sampleComponents))
}

func TestDataFlowDiagram(t *testing.T) {
	want := `graph LR
    WebFrontend -->|data| CoreService
    CoreService -->|data| Database
    CoreService -->|data| ERP`
	assert.Equal(t, want, DataFlowDiagram(sampleComponents))

	assert.Equal(t, "graph LR\n    Solo", DataFlowDiagram([]Component{{Name: "Solo"}}))
}

func TestInfrastructureDiagram(t *testing.T) {
	want := `graph TD
    Users((Users))
    subgraph platform [Azure App Service]
        subgraph presentation_tier [Presentation]
            WebFrontend[WebFrontend<br/>React]
        end
        subgraph application_tier [Application]
            CoreService(CoreService<br/>Go)
        end
        subgraph integration_tier [Integration]
            ERP{{ERP<br/>SAP S/4}}
        end
        subgraph data_tier [Data]
            Database[(Database<br/>PostgreSQL)]
        end
    end
    Users --> WebFrontend
    WebFrontend --> CoreService
    CoreService --> ERP
    ERP --> Database`
	assert.Equal(t, want, InfrastructureDiagram("Azure App Service", sampleComponents))

	got := InfrastructureDiagram("", []Component{{Name: "Worker", Layer: "batch"}})
	assert.Contains(t, got, "subgraph platform [Hosting]")
	assert.Contains(t, got, "subgraph application_tier [Application]")
	assert.Contains(t, got, "Users --> Worker")
}

func TestSequenceDiagram(t *testing.T) {
	want := `sequenceDiagram
    actor User
    participant WebFrontend
    participant CoreService
    participant Database
    participant ERP
    User->>WebFrontend: request
    WebFrontend->>CoreService: call
    CoreService->>Database: query
    Database-->>CoreService: result
    CoreService->>ERP: sync
    ERP-->>CoreService: result
    CoreService-->>WebFrontend: result
    WebFrontend-->>User: response`
	assert.Equal(t, want, SequenceDiagram(sampleComponents))

	cyclic := []Component{
		{Name: "A", Layer: LayerApplication, DependsOn: []string{"B"}},
		{Name: "B", Layer: LayerApplication, DependsOn: []string{"A", "Missing"}},
	}
	assert.Equal(t, `sequenceDiagram
    actor User
    participant A
    participant B
    User->>A: request
    A->>B: call
    B-->>A: result
    A-->>User: response`, SequenceDiagram(cyclic))
}

func TestVisualization_Run(t *testing.T) {
	in := input(
		record(t, KeySolution, Solution{Architecture: "modular monolith", Hosting: "AWS ECS"}),
		record(t, KeyComponents, Components{Items: sampleComponents}),
	)

	out, err := NewVisualization(Options{}).Run(context.Background(), in)
	require.NoError(t, err)

	var d Diagrams
	decodeWrite(t, out, KeyDiagrams, &d)
	require.Len(t, d.Items, 4)
	assert.Equal(t, "system", d.Items[0].Kind)
	assert.Equal(t, "data_flow", d.Items[1].Kind)
	assert.Equal(t, "infrastructure", d.Items[2].Kind)
	assert.Contains(t, d.Items[2].Mermaid, "subgraph platform [AWS ECS]")
	assert.Equal(t, "sequence", d.Items[3].Kind)

	require.Len(t, out.Artifacts, 4)
	for _, a := range out.Artifacts {
		assert.Equal(t, orchestrator.ArtifactDiagram, a.Kind)
	}
	assert.Equal(t, "system-architecture.mmd", out.Artifacts[0].Name)
	assert.Equal(t, d.Items[0].Mermaid, out.Artifacts[0].Content)
}

func TestVisualization_WithoutSolution(t *testing.T) {
	in := input(record(t, KeyComponents, Components{Items: sampleComponents}))

	out, err := NewVisualization(Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Artifacts, 4)
	assert.Equal(t, "infrastructure.mmd", out.Artifacts[2].Name)
	assert.Contains(t, out.Artifacts[2].Content, "subgraph platform [Hosting]")
}

func TestVisualization_NoComponents(t *testing.T) {
	in := input(record(t, KeyComponents, Components{}))

	_, err := NewVisualization(Options{}).Run(context.Background(), in)
	var werr *orchestrator.WorkerError
	require.True(t, errors.As(err, &werr))
	assert.False(t, werr.Retryable)
}
