// Package workers provides the five built-in specialist workers of a
// proposal workflow and the pipeline that registers them.
//
// Each worker declares the record keys it reads and writes:
//
//	analysis       input.document, clarification.*  -> analysis.requirements, analysis.summary
//	strategy       analysis.*                        -> strategy.solution, strategy.components
//	visualization  strategy.components               -> visualization.diagrams    (diagram artifacts)
//	planning       strategy.components, analysis.requirements
//	                                                 -> planning.timeline, planning.costs, planning.risks
//	                                                                              (project_plan artifact)
//	writing        every upstream key                -> proposal.document         (proposal_document artifact)
//
// Workers are deterministic on their own. When a model is configured, each
// one asks it for a short narrative and attaches the text to its output;
// model failures surface as retryable or fatal WorkerErrors.
package workers
